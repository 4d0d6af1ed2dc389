package common

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"cbs/src/db"
	"cbs/src/lib"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// DefaultTurnaroundHours applies when a film-review listing does not set its
// own turnaround.
const DefaultTurnaroundHours = 48

// TryTransitionReview is the film-review counterpart of
// TryTransitionRequest: a guarded update keyed on the current review status.
func TryTransitionReview(tx *gorm.DB, bookingId uuid.UUID, from, to types.ReviewStatus, extra map[string]any) error {
	updates := map[string]any{"review_status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.
		Model(&models.Booking{}).
		Where("id = ? AND review_status = ?", bookingId, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// CheckoutFilmReview charges the athlete up front and records the booking.
// The booking id doubles as the idempotency anchor for the charge, so a
// retried checkout never captures twice. A capture that needs bank
// authentication still persists the booking, held in pending_payment so the
// payment webhook has a row to finalize once the athlete authenticates.
func CheckoutFilmReview(ctx context.Context, athlete *models.User, coach *models.User, listing *models.Listing, filmURL, notes, paymentMethodId string) (*AcceptResult, error) {
	if coach.StripeAccountId == nil || !coach.PayoutReady {
		return nil, ErrCoachPayoutNotConfigured
	}
	settings := CurrentCommissionSettings()
	fees := ComputeFees(listing.PriceCents, settings)
	totalCents := listing.PriceCents + fees.AthleteSurchargeCents

	customer, err := findOrCreateCustomer(ctx, athlete.Email, athlete.Name)
	if err != nil {
		return nil, err
	}
	if err := attachPaymentMethod(ctx, paymentMethodId, customer.ID); err != nil {
		return nil, err
	}

	bookingId := uuid.New()
	params := &lib.CaptureParams{
		AmountCents:          totalCents,
		Currency:             listing.Currency,
		CustomerID:           customer.ID,
		PaymentMethodID:      paymentMethodId,
		DestinationAccountID: *coach.StripeAccountId,
		ApplicationFeeCents:  fees.PlatformCutCents + fees.AthleteSurchargeCents,
		IdempotencyKey:       fmt.Sprintf("film-checkout-%s", bookingId),
		Metadata: map[string]string{
			"booking_id": bookingId.String(),
			"listing_id": listing.ID.String(),
		},
	}
	capture, err := capturePayment(ctx, params)
	if err != nil {
		capture, err = replayCapture(ctx, params, err)
		if err != nil {
			log.Printf("[RECONCILE] capture outcome unknown for film checkout %s: %s\n", bookingId, err.Error())
			return nil, err
		}
	}
	if capture.State == lib.CAPTURE_DECLINED {
		return &AcceptResult{Outcome: ACCEPT_DECLINED, DeclineReason: capture.Reason}, nil
	}

	booking := models.Booking{
		ID:              bookingId,
		ListingID:       listing.ID,
		CoachID:         coach.ID,
		AthleteID:       athlete.ID,
		CustomerEmail:   athlete.Email,
		Type:            types.BOOKING_FILM_REVIEW,
		Status:          types.BOOKING_PAID,
		AmountPaidCents: totalCents,
		Currency:        listing.Currency,
		PaymentIntentId: &capture.PaymentIntentID,
		FilmURL:         filmURL,
		Notes:           notes,
		ReviewStatus:    types.REVIEW_PENDING_ACCEPTANCE,
	}
	if capture.State == lib.CAPTURE_REQUIRES_ACTION {
		// No money has moved yet; the coach must not see the review
		// until the webhook confirms the charge.
		booking.Status = types.BOOKING_PENDING_PAYMENT
		booking.ReviewStatus = ""
	}
	d := db.GetDb()
	err = d.Transaction(func(tx *gorm.DB) error {
		conversation := models.Conversation{CoachID: coach.ID, AthleteID: athlete.ID}
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		booking.ConversationID = &conversation.ID
		return tx.Create(&booking).Error
	})
	if err != nil {
		if capture.State == lib.CAPTURE_SUCCEEDED {
			log.Printf("[RECONCILE] captured payment %s but film review booking %s could not be created: %s\n", capture.PaymentIntentID, bookingId, err.Error())
		}
		return nil, err
	}

	if capture.State == lib.CAPTURE_REQUIRES_ACTION {
		link := fmt.Sprintf("%s/payments/complete?payment_intent_client_secret=%s", os.Getenv("APP_HOST"), capture.ClientSecret)
		PostSystemMessage(*booking.ConversationID, fmt.Sprintf("Your bank needs to verify this payment before the review can start. Complete it here: %s", link), types.JSONB{"event": "payment_requires_action"})
		return &AcceptResult{Outcome: ACCEPT_REQUIRES_ACTION, Booking: &booking, ClientSecret: capture.ClientSecret}, nil
	}

	PostSystemMessage(*booking.ConversationID, "Film review purchased. Waiting for the coach to accept.", types.JSONB{"event": "review_purchased"})
	SendEmailAsync(coach.Email, "New film review request", fmt.Sprintf("%s purchased a film review of %q. Accept it to start the turnaround clock.", athlete.Name, listing.Title))
	return &AcceptResult{Outcome: ACCEPT_CONFIRMED, Booking: &booking}, nil
}

// FinalizeDeferredCheckout promotes a film-review booking out of
// pending_payment once the payment webhook confirms the charge. The guarded
// update makes redelivered events no-ops, reported as ErrAlreadyProcessed.
func FinalizeDeferredCheckout(ctx context.Context, bookingId uuid.UUID, pi *stripe.PaymentIntent) error {
	d := db.GetDb()
	var booking models.Booking
	if err := d.First(&booking, "id = ?", bookingId).Error; err != nil {
		return err
	}
	res := d.Model(&models.Booking{}).
		Where("id = ? AND status = ?", bookingId, types.BOOKING_PENDING_PAYMENT).
		Updates(map[string]any{
			"status":            types.BOOKING_PAID,
			"review_status":     types.REVIEW_PENDING_ACCEPTANCE,
			"payment_intent_id": pi.ID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	booking.Status = types.BOOKING_PAID
	booking.ReviewStatus = types.REVIEW_PENDING_ACCEPTANCE

	if booking.ConversationID != nil {
		PostSystemMessage(*booking.ConversationID, "Film review purchased. Waiting for the coach to accept.", types.JSONB{"event": "review_purchased"})
	}
	var coach models.User
	var listing models.Listing
	if d.First(&coach, booking.CoachID).Error == nil && d.First(&listing, "id = ?", booking.ListingID).Error == nil {
		SendEmailAsync(coach.Email, "New film review request", fmt.Sprintf("A film review of %q has been purchased. Accept it to start the turnaround clock.", listing.Title))
	}
	return nil
}

// AcceptFilmReview starts the coach's turnaround clock. The deadline is
// anchored to acceptance time, not checkout time, and the film URL becomes
// visible to the coach only from this point on.
func AcceptFilmReview(booking *models.Booking) error {
	d := db.GetDb()
	var listing models.Listing
	if err := d.First(&listing, "id = ?", booking.ListingID).Error; err != nil {
		return err
	}
	turnaround := listing.TurnaroundHours
	if turnaround == 0 {
		turnaround = DefaultTurnaroundHours
	}
	deadline := time.Now().Add(time.Duration(turnaround) * time.Hour)
	err := TryTransitionReview(d, booking.ID, types.REVIEW_PENDING_ACCEPTANCE, types.REVIEW_ACCEPTED, map[string]any{
		"deadline_at": deadline,
	})
	if err != nil {
		return err
	}
	booking.ReviewStatus = types.REVIEW_ACCEPTED
	booking.DeadlineAt = &deadline

	if booking.ConversationID != nil {
		PostSystemMessage(*booking.ConversationID,
			fmt.Sprintf("Film review accepted. The coach will deliver feedback by %s.", deadline.Format(time.RFC1123)),
			types.JSONB{"event": "review_accepted", "deadline_at": deadline.Format(time.RFC3339)})
	}
	SendEmailAsync(booking.CustomerEmail, "Film review accepted", fmt.Sprintf("Your film review has been accepted. Expect feedback within %d hours.", turnaround))
	return nil
}

// DeclineFilmReview cancels the booking and refunds the athlete in full.
// The state flips first; a refund failure after that is escalated for
// manual reconciliation rather than rolled back, so the coach never ends up
// obligated to a review they declined.
func DeclineFilmReview(ctx context.Context, booking *models.Booking, reason string) error {
	d := db.GetDb()
	err := d.Transaction(func(tx *gorm.DB) error {
		if err := TryTransitionReview(tx, booking.ID, types.REVIEW_PENDING_ACCEPTANCE, types.REVIEW_DECLINED, nil); err != nil {
			return err
		}
		return tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("status", types.BOOKING_CANCELED).Error
	})
	if err != nil {
		return err
	}
	booking.ReviewStatus = types.REVIEW_DECLINED
	booking.Status = types.BOOKING_CANCELED

	if booking.PaymentIntentId != nil {
		if _, err := refundPayment(ctx, *booking.PaymentIntentId); err != nil {
			log.Printf("[RECONCILE] declined film review %s but refund of %s failed: %s\n", booking.ID, *booking.PaymentIntentId, err.Error())
		}
	} else {
		log.Printf("[RECONCILE] declined film review %s has no payment intent to refund\n", booking.ID)
	}

	if booking.ConversationID != nil {
		body := "The coach declined this film review. A full refund has been issued."
		if reason != "" {
			body = fmt.Sprintf("The coach declined this film review: %s. A full refund has been issued.", reason)
		}
		PostSystemMessage(*booking.ConversationID, body, types.JSONB{"event": "review_declined"})
	}
	SendEmailAsync(booking.CustomerEmail, "Film review declined", "Your film review was declined and a full refund has been issued.")
	return nil
}

// CompleteFilmReview stores the structured review and closes the booking.
// Late delivery is recorded but never blocks completion; the payout audit
// row and notifications are best-effort.
func CompleteFilmReview(booking *models.Booking, review types.JSONB, documentURL string) error {
	d := db.GetDb()
	now := time.Now()
	late := false
	hoursLate := uint(0)
	if booking.DeadlineAt != nil && now.After(*booking.DeadlineAt) {
		late = true
		hoursLate = uint(math.Ceil(now.Sub(*booking.DeadlineAt).Hours()))
	}

	updates := map[string]any{
		"review":              review,
		"review_completed_at": now,
		"late":                late,
		"hours_late":          hoursLate,
		"status":              types.BOOKING_COMPLETED,
	}
	if documentURL != "" {
		updates["review_document_url"] = documentURL
	}
	if err := TryTransitionReview(d, booking.ID, types.REVIEW_ACCEPTED, types.REVIEW_COMPLETED, updates); err != nil {
		return err
	}
	booking.ReviewStatus = types.REVIEW_COMPLETED
	booking.Status = types.BOOKING_COMPLETED
	booking.Review = review
	booking.ReviewCompletedAt = &now
	booking.Late = late
	booking.HoursLate = hoursLate

	payout := models.PayoutEvent{
		BookingID:   booking.ID,
		CoachID:     booking.CoachID,
		EventType:   types.PAYOUT_REVIEW_COMPLETED,
		AmountCents: booking.AmountPaidCents,
	}
	if err := d.Create(&payout).Error; err != nil {
		log.Printf("Error recording payout event for booking %s: %s\n", booking.ID, err.Error())
	}

	if booking.ConversationID != nil {
		PostSystemMessage(*booking.ConversationID, "Your film review is ready!", types.JSONB{"event": "review_completed"})
	}
	SendEmailAsync(booking.CustomerEmail, "Your film review is ready", "The coach has completed your film review. Log in to read their feedback.")
	NotifyPushAsync(booking.AthleteID, "Film review ready", "Your film review feedback has been delivered")
	return nil
}
