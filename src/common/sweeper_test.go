package common

import (
	"testing"
	"time"

	"cbs/src/models"
	"cbs/src/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpiredRequests(t *testing.T) {
	d := newTestDB(t)
	w := seedLiveLesson(t, d)

	// Age the seeded request past the response window and add a fresh one
	// that must survive the sweep.
	stale := time.Now().Add(-RequestExpiryWindow - time.Hour)
	require.NoError(t, d.Model(&models.BookingRequest{}).Where("id = ?", w.Request.ID).Update("created_at", stale).Error)

	fresh := models.BookingRequest{
		ListingID:       w.Listing.ID,
		CoachID:         w.Coach.ID,
		AthleteID:       w.Athlete.ID,
		Timezone:        "America/New_York",
		Status:          types.REQUEST_PENDING,
		PaymentMethodID: "pm_fresh",
	}
	require.NoError(t, d.Create(&fresh).Error)

	result := SweepExpiredRequests()
	assert.Equal(t, 1, result.ExpiredCount)
	assert.Equal(t, 0, result.ErrorCount)

	var expired models.BookingRequest
	require.NoError(t, d.First(&expired, "id = ?", w.Request.ID).Error)
	assert.Equal(t, types.REQUEST_EXPIRED, expired.Status)

	var pending models.BookingRequest
	require.NoError(t, d.First(&pending, "id = ?", fresh.ID).Error)
	assert.Equal(t, types.REQUEST_PENDING, pending.Status)

	// The athlete is told in the conversation.
	var message models.Message
	require.NoError(t, d.Where("conversation_id = ?", w.Request.ConversationID).Order("created_at desc").First(&message).Error)
	assert.Contains(t, message.Body, "expired")
}

func TestSweepSkipsTerminalRequests(t *testing.T) {
	d := newTestDB(t)
	w := seedLiveLesson(t, d)

	stale := time.Now().Add(-RequestExpiryWindow - time.Hour)
	require.NoError(t, d.Model(&models.BookingRequest{}).Where("id = ?", w.Request.ID).Updates(map[string]any{
		"created_at": stale,
		"status":     types.REQUEST_ACCEPTED,
	}).Error)

	result := SweepExpiredRequests()
	assert.Equal(t, 0, result.ExpiredCount)
	assert.Equal(t, 0, result.ErrorCount)

	var request models.BookingRequest
	require.NoError(t, d.First(&request, "id = ?", w.Request.ID).Error)
	assert.Equal(t, types.REQUEST_ACCEPTED, request.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	d := newTestDB(t)
	w := seedLiveLesson(t, d)

	stale := time.Now().Add(-RequestExpiryWindow - time.Hour)
	require.NoError(t, d.Model(&models.BookingRequest{}).Where("id = ?", w.Request.ID).Update("created_at", stale).Error)

	first := SweepExpiredRequests()
	assert.Equal(t, 1, first.ExpiredCount)

	second := SweepExpiredRequests()
	assert.Equal(t, 0, second.ExpiredCount)
	assert.Equal(t, 0, second.ErrorCount)
}

func TestRequestExpiresAt(t *testing.T) {
	d := newTestDB(t)
	w := seedLiveLesson(t, d)
	assert.Equal(t, w.Request.CreatedAt.Add(RequestExpiryWindow), RequestExpiresAt(&w.Request))
}
