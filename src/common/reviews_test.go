package common

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"cbs/src/lib"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

func seedFilmReview(t *testing.T, d *gorm.DB, turnaroundHours uint) *models.Booking {
	t.Helper()
	accountId := "acct_coach"
	suffix := uuid.NewString()[:8]
	coach := models.User{
		Name:            "Coach Carter",
		Email:           fmt.Sprintf("coach-%s@example.com", suffix),
		Role:            string(types.ROLE_COACH),
		StripeAccountId: &accountId,
		PayoutReady:     true,
	}
	require.NoError(t, d.Create(&coach).Error)
	athlete := models.User{Name: "Alex Athlete", Email: fmt.Sprintf("athlete-%s@example.com", suffix)}
	require.NoError(t, d.Create(&athlete).Error)
	listing := models.Listing{
		CoachID:         coach.ID,
		Title:           "Game Film Breakdown",
		Kind:            types.LISTING_FILM_REVIEW,
		PriceCents:      5000,
		Currency:        "usd",
		TurnaroundHours: turnaroundHours,
	}
	require.NoError(t, d.Create(&listing).Error)
	conversation := models.Conversation{CoachID: coach.ID, AthleteID: athlete.ID}
	require.NoError(t, d.Create(&conversation).Error)

	pi := "pi_film"
	booking := models.Booking{
		ListingID:       listing.ID,
		CoachID:         coach.ID,
		AthleteID:       athlete.ID,
		CustomerEmail:   athlete.Email,
		Type:            types.BOOKING_FILM_REVIEW,
		Status:          types.BOOKING_PAID,
		AmountPaidCents: 5000,
		Currency:        "usd",
		PaymentIntentId: &pi,
		FilmURL:         "https://youtube.com/watch?v=abc123",
		ReviewStatus:    types.REVIEW_PENDING_ACCEPTANCE,
		ConversationID:  &conversation.ID,
	}
	require.NoError(t, d.Create(&booking).Error)
	return &booking
}

func validReview() types.JSONB {
	return types.JSONB{
		"overall_assessment":    strings.Repeat("solid fundamentals ", 12),
		"strengths":             strings.Repeat("quick release ", 8),
		"areas_for_improvement": strings.Repeat("footwork drills ", 7),
		"recommended_drills":    strings.Repeat("mikan drill reps ", 7),
	}
}

func TestAcceptFilmReviewStartsDeadline(t *testing.T) {
	d := newTestDB(t)
	booking := seedFilmReview(t, d, 72)

	before := time.Now()
	require.NoError(t, AcceptFilmReview(booking))
	assert.Equal(t, types.REVIEW_ACCEPTED, booking.ReviewStatus)
	require.NotNil(t, booking.DeadlineAt)

	expected := before.Add(72 * time.Hour)
	assert.WithinDuration(t, expected, *booking.DeadlineAt, time.Minute)

	var stored models.Booking
	require.NoError(t, d.First(&stored, "id = ?", booking.ID).Error)
	assert.Equal(t, types.REVIEW_ACCEPTED, stored.ReviewStatus)
	require.NotNil(t, stored.DeadlineAt)
}

func TestAcceptFilmReviewDefaultTurnaround(t *testing.T) {
	d := newTestDB(t)
	booking := seedFilmReview(t, d, 0)

	require.NoError(t, AcceptFilmReview(booking))
	expected := time.Now().Add(DefaultTurnaroundHours * time.Hour)
	assert.WithinDuration(t, expected, *booking.DeadlineAt, time.Minute)
}

func TestAcceptFilmReviewTwice(t *testing.T) {
	d := newTestDB(t)
	booking := seedFilmReview(t, d, 48)

	require.NoError(t, AcceptFilmReview(booking))
	err := AcceptFilmReview(booking)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestDeclineFilmReviewRefundsInFull(t *testing.T) {
	d := newTestDB(t)
	booking := seedFilmReview(t, d, 48)
	g := installStubGateway(t)

	require.NoError(t, DeclineFilmReview(context.Background(), booking, "footage too dark"))
	assert.Equal(t, types.REVIEW_DECLINED, booking.ReviewStatus)
	assert.Equal(t, types.BOOKING_CANCELED, booking.Status)

	require.Len(t, g.refunds, 1)
	assert.Equal(t, "pi_film", g.refunds[0])

	var stored models.Booking
	require.NoError(t, d.First(&stored, "id = ?", booking.ID).Error)
	assert.Equal(t, types.BOOKING_CANCELED, stored.Status)
	assert.Equal(t, types.REVIEW_DECLINED, stored.ReviewStatus)

	var message models.Message
	require.NoError(t, d.Where("conversation_id = ?", booking.ConversationID).Order("created_at desc").First(&message).Error)
	assert.Contains(t, message.Body, "refund")
}

func TestDeclineAcceptedReviewRejected(t *testing.T) {
	d := newTestDB(t)
	booking := seedFilmReview(t, d, 48)
	g := installStubGateway(t)

	require.NoError(t, AcceptFilmReview(booking))
	err := DeclineFilmReview(context.Background(), booking, "")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Empty(t, g.refunds)
}

func TestCompleteFilmReviewOnTime(t *testing.T) {
	d := newTestDB(t)
	booking := seedFilmReview(t, d, 48)
	require.NoError(t, AcceptFilmReview(booking))

	require.NoError(t, CompleteFilmReview(booking, validReview(), ""))
	assert.Equal(t, types.REVIEW_COMPLETED, booking.ReviewStatus)
	assert.Equal(t, types.BOOKING_COMPLETED, booking.Status)
	assert.False(t, booking.Late)
	assert.Equal(t, uint(0), booking.HoursLate)
	require.NotNil(t, booking.ReviewCompletedAt)

	var stored models.Booking
	require.NoError(t, d.First(&stored, "id = ?", booking.ID).Error)
	assert.Equal(t, types.REVIEW_COMPLETED, stored.ReviewStatus)
	assert.Equal(t, strings.Repeat("quick release ", 8), stored.Review["strengths"])

	var payout models.PayoutEvent
	require.NoError(t, d.First(&payout, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, types.PAYOUT_REVIEW_COMPLETED, payout.EventType)
	assert.Equal(t, int64(5000), payout.AmountCents)
}

func TestCompleteFilmReviewLate(t *testing.T) {
	d := newTestDB(t)
	booking := seedFilmReview(t, d, 48)
	require.NoError(t, AcceptFilmReview(booking))

	// Push the deadline into the past: the coach is delivering roughly
	// five hours late.
	pastDeadline := time.Now().Add(-4*time.Hour - 30*time.Minute)
	require.NoError(t, d.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("deadline_at", pastDeadline).Error)
	booking.DeadlineAt = &pastDeadline

	require.NoError(t, CompleteFilmReview(booking, validReview(), ""))
	assert.True(t, booking.Late)
	assert.Equal(t, uint(5), booking.HoursLate)
	assert.Equal(t, types.REVIEW_COMPLETED, booking.ReviewStatus)
}

func TestCompleteFilmReviewTerminalStates(t *testing.T) {
	d := newTestDB(t)
	installStubGateway(t)

	t.Run("pending acceptance", func(t *testing.T) {
		booking := seedFilmReview(t, d, 48)
		err := CompleteFilmReview(booking, validReview(), "")
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	})

	t.Run("already completed", func(t *testing.T) {
		d.Exec("DELETE FROM bookings")
		booking := seedFilmReview(t, d, 48)
		require.NoError(t, AcceptFilmReview(booking))
		require.NoError(t, CompleteFilmReview(booking, validReview(), ""))
		err := CompleteFilmReview(booking, validReview(), "")
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	})
}

func seedFilmListing(t *testing.T, d *gorm.DB) (*models.User, *models.User, *models.Listing) {
	t.Helper()
	accountId := "acct_coach"
	suffix := uuid.NewString()[:8]
	coach := models.User{
		Name:            "Coach Carter",
		Email:           fmt.Sprintf("coach-%s@example.com", suffix),
		Role:            string(types.ROLE_COACH),
		StripeAccountId: &accountId,
		PayoutReady:     true,
	}
	require.NoError(t, d.Create(&coach).Error)
	athlete := models.User{Name: "Alex Athlete", Email: fmt.Sprintf("athlete-%s@example.com", suffix)}
	require.NoError(t, d.Create(&athlete).Error)
	listing := models.Listing{
		CoachID:         coach.ID,
		Title:           "Game Film Breakdown",
		Kind:            types.LISTING_FILM_REVIEW,
		PriceCents:      5000,
		Currency:        "usd",
		TurnaroundHours: 24,
	}
	require.NoError(t, d.Create(&listing).Error)
	return &coach, &athlete, &listing
}

func TestFilmCheckoutConfirmed(t *testing.T) {
	d := newTestDB(t)
	g := installStubGateway(t)
	coach, athlete, listing := seedFilmListing(t, d)

	result, err := CheckoutFilmReview(context.Background(), athlete, coach, listing, "https://youtube.com/watch?v=abc123", "watch the second half", "pm_test")
	require.NoError(t, err)
	require.Equal(t, ACCEPT_CONFIRMED, result.Outcome)
	require.NotNil(t, result.Booking)

	var stored models.Booking
	require.NoError(t, d.First(&stored, "id = ?", result.Booking.ID).Error)
	assert.Equal(t, types.BOOKING_PAID, stored.Status)
	assert.Equal(t, types.REVIEW_PENDING_ACCEPTANCE, stored.ReviewStatus)
	assert.Equal(t, int64(5000), stored.AmountPaidCents)
	require.NotNil(t, stored.ConversationID)

	require.Len(t, g.captures, 1)
	assert.Equal(t, fmt.Sprintf("film-checkout-%s", stored.ID), g.captures[0].IdempotencyKey)
	assert.Equal(t, stored.ID.String(), g.captures[0].Metadata["booking_id"])
}

func TestFilmCheckoutDeclinedLeavesNoBooking(t *testing.T) {
	d := newTestDB(t)
	g := installStubGateway(t)
	g.capture = func(p *lib.CaptureParams) (*lib.CaptureResult, error) {
		return &lib.CaptureResult{State: lib.CAPTURE_DECLINED, Reason: "insufficient funds"}, nil
	}
	coach, athlete, listing := seedFilmListing(t, d)

	result, err := CheckoutFilmReview(context.Background(), athlete, coach, listing, "https://youtube.com/watch?v=abc123", "", "pm_test")
	require.NoError(t, err)
	assert.Equal(t, ACCEPT_DECLINED, result.Outcome)
	assert.Equal(t, "insufficient funds", result.DeclineReason)

	var count int64
	require.NoError(t, d.Model(&models.Booking{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

// A capture that needs bank authentication must leave a row behind for the
// payment webhook to finalize, and the coach must not be able to act on the
// review until the charge confirms.
func TestFilmCheckoutDeferredUntilAuthentication(t *testing.T) {
	d := newTestDB(t)
	g := installStubGateway(t)
	g.capture = func(p *lib.CaptureParams) (*lib.CaptureResult, error) {
		return &lib.CaptureResult{State: lib.CAPTURE_REQUIRES_ACTION, PaymentIntentID: "pi_sca", ClientSecret: "pi_sca_secret"}, nil
	}
	coach, athlete, listing := seedFilmListing(t, d)

	result, err := CheckoutFilmReview(context.Background(), athlete, coach, listing, "https://youtube.com/watch?v=abc123", "", "pm_test")
	require.NoError(t, err)
	require.Equal(t, ACCEPT_REQUIRES_ACTION, result.Outcome)
	require.NotNil(t, result.Booking)

	var held models.Booking
	require.NoError(t, d.First(&held, "id = ?", result.Booking.ID).Error)
	assert.Equal(t, types.BOOKING_PENDING_PAYMENT, held.Status)
	assert.Empty(t, held.ReviewStatus)

	var message models.Message
	require.NoError(t, d.Where("conversation_id = ?", held.ConversationID).Order("created_at desc").First(&message).Error)
	assert.Contains(t, message.Body, "pi_sca_secret")

	err = AcceptFilmReview(&held)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	intent := &stripe.PaymentIntent{ID: "pi_sca", Status: stripe.PaymentIntentStatusSucceeded}
	require.NoError(t, FinalizeDeferredCheckout(context.Background(), held.ID, intent))

	var stored models.Booking
	require.NoError(t, d.First(&stored, "id = ?", held.ID).Error)
	assert.Equal(t, types.BOOKING_PAID, stored.Status)
	assert.Equal(t, types.REVIEW_PENDING_ACCEPTANCE, stored.ReviewStatus)
	require.NotNil(t, stored.PaymentIntentId)
	assert.Equal(t, "pi_sca", *stored.PaymentIntentId)

	// Reset so the previous row's primary key is not added as a query condition.
	message = models.Message{}
	require.NoError(t, d.Where("conversation_id = ?", stored.ConversationID).Order("created_at desc").First(&message).Error)
	assert.Contains(t, message.Body, "purchased")

	// Redelivered webhook events land on the already-paid row.
	err = FinalizeDeferredCheckout(context.Background(), held.ID, intent)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestFinalizeDeferredCheckoutUnknownBooking(t *testing.T) {
	newTestDB(t)

	intent := &stripe.PaymentIntent{ID: "pi_ghost", Status: stripe.PaymentIntentStatusSucceeded}
	err := FinalizeDeferredCheckout(context.Background(), uuid.New(), intent)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
