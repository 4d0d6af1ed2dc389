package common

import (
	"log"
	"time"

	"cbs/src/db"
	"cbs/src/models"
	"cbs/src/types"
)

// RequestExpiryWindow is how long a coach has to respond before a pending
// request lapses.
const RequestExpiryWindow = 72 * time.Hour

type SweepResult struct {
	ExpiredCount int `json:"expired_count"`
	ErrorCount   int `json:"error_count"`
}

// SweepExpiredRequests expires every pending request older than the window.
// Each request is handled independently so one bad row cannot stall the
// rest of the sweep, and the guarded transition makes the sweep safe to run
// concurrently with a coach accepting at the last minute.
func SweepExpiredRequests() SweepResult {
	d := db.GetDb()
	cutoff := time.Now().Add(-RequestExpiryWindow)

	var stale []models.BookingRequest
	if err := d.
		Where("status = ? AND created_at < ?", types.REQUEST_PENDING, cutoff).
		Find(&stale).
		Error; err != nil {
		log.Printf("Error querying stale requests: %s\n", err.Error())
		return SweepResult{ErrorCount: 1}
	}

	result := SweepResult{}
	for i := range stale {
		request := &stale[i]
		expired, err := expireRequest(request)
		if err != nil {
			log.Printf("Error expiring request %s: %s\n", request.ID, err.Error())
			result.ErrorCount++
			continue
		}
		if expired {
			result.ExpiredCount++
		}
	}
	if result.ExpiredCount > 0 || result.ErrorCount > 0 {
		log.Printf("Request sweep finished: %d expired, %d errors\n", result.ExpiredCount, result.ErrorCount)
	}
	return result
}

func expireRequest(request *models.BookingRequest) (bool, error) {
	d := db.GetDb()
	if err := TryTransitionRequest(d, request.ID, types.REQUEST_PENDING, types.REQUEST_EXPIRED); err != nil {
		// Lost the race to an accept or decline. Not an error for the sweep.
		if err == ErrAlreadyProcessed {
			return false, nil
		}
		return false, err
	}
	request.Status = types.REQUEST_EXPIRED
	if request.ConversationID != nil {
		PostSystemMessage(*request.ConversationID, "This booking request expired without a response. You have not been charged.", types.JSONB{"event": "request_expired"})
	}
	var athlete models.User
	if err := d.First(&athlete, request.AthleteID).Error; err == nil {
		SendEmailAsync(athlete.Email, "Booking request expired", "Your booking request expired without a response from the coach. You have not been charged.")
	}
	return true, nil
}
