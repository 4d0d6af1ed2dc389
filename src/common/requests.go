package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"cbs/src/db"
	"cbs/src/lib"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

var (
	ErrAlreadyProcessed         = errors.New("request already processed")
	ErrNotRequestOwner          = errors.New("request belongs to another coach")
	ErrMissingPaymentMethod     = errors.New("request has no payment method on file")
	ErrCoachPayoutNotConfigured = errors.New("coach has no payout account configured")
)

// Gateway and provisioner seams. Package-level so tests can stub the
// network edges while exercising the real transition logic.
var (
	findOrCreateCustomer = lib.FindOrCreateCustomer
	attachPaymentMethod  = lib.AttachPaymentMethod
	capturePayment       = lib.CapturePayment
	refundPayment        = lib.RefundPayment
	createMeeting        = lib.ZoomCreateMeeting
)

// replayCapture settles a capture whose first attempt failed in transit by
// re-issuing it with the same idempotency key: if the original charge landed
// the gateway returns that intent instead of creating a second one, so the
// replay reads the true outcome without risking a double charge.
func replayCapture(ctx context.Context, params *lib.CaptureParams, cause error) (*lib.CaptureResult, error) {
	log.Printf("Capture with key %s failed in transit, replaying to settle the outcome: %s\n", params.IdempotencyKey, cause.Error())
	return capturePayment(ctx, params)
}

type AcceptOutcome string

const (
	ACCEPT_CONFIRMED       AcceptOutcome = "confirmed"
	ACCEPT_REQUIRES_ACTION AcceptOutcome = "requires_action"
	ACCEPT_DECLINED        AcceptOutcome = "payment_declined"
)

type AcceptResult struct {
	Outcome       AcceptOutcome   `json:"outcome"`
	Booking       *models.Booking `json:"booking,omitempty"`
	ClientSecret  string          `json:"client_secret,omitempty"`
	DeclineReason string          `json:"decline_reason,omitempty"`
}

// TryTransitionRequest moves a request out of pending with a guarded update:
// the write only lands if the row is still in the expected status, so two
// racing accepts (or an accept racing the sweeper) resolve to exactly one
// winner. Returns ErrAlreadyProcessed for the loser.
func TryTransitionRequest(tx *gorm.DB, requestId uuid.UUID, from, to types.RequestStatus) error {
	res := tx.
		Model(&models.BookingRequest{}).
		Where("id = ? AND status = ?", requestId, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// AcceptBookingRequest runs the full acceptance flow for a live lesson:
// payment capture with the platform fee split, then meeting provisioning and
// booking creation. The capture is attempted before the status flips, so a
// declined card leaves the request pending and acceptance can be retried.
func AcceptBookingRequest(ctx context.Context, request *models.BookingRequest, coach *models.User) (*AcceptResult, error) {
	if request.Status != types.REQUEST_PENDING {
		return nil, ErrAlreadyProcessed
	}
	if request.PaymentMethodID == "" {
		return nil, ErrMissingPaymentMethod
	}
	if coach.StripeAccountId == nil || !coach.PayoutReady {
		return nil, ErrCoachPayoutNotConfigured
	}
	d := db.GetDb()
	var listing models.Listing
	if err := d.First(&listing, "id = ?", request.ListingID).Error; err != nil {
		return nil, err
	}
	var athlete models.User
	if err := d.First(&athlete, request.AthleteID).Error; err != nil {
		return nil, err
	}

	settings := CurrentCommissionSettings()
	fees := ComputeFees(listing.PriceCents, settings)
	totalCents := listing.PriceCents + fees.AthleteSurchargeCents

	customer, err := findOrCreateCustomer(ctx, athlete.Email, athlete.Name)
	if err != nil {
		return nil, err
	}
	if athlete.StripeCustomerId == nil || *athlete.StripeCustomerId != customer.ID {
		if err := d.Model(&athlete).Update("stripe_customer_id", customer.ID).Error; err != nil {
			log.Printf("Error saving customer id for user %d: %s\n", athlete.ID, err.Error())
		}
	}
	if err := attachPaymentMethod(ctx, request.PaymentMethodID, customer.ID); err != nil {
		return nil, err
	}

	params := &lib.CaptureParams{
		AmountCents:          totalCents,
		Currency:             listing.Currency,
		CustomerID:           customer.ID,
		PaymentMethodID:      request.PaymentMethodID,
		DestinationAccountID: *coach.StripeAccountId,
		ApplicationFeeCents:  fees.PlatformCutCents + fees.AthleteSurchargeCents,
		IdempotencyKey:       fmt.Sprintf("accept-%s", request.ID),
		OffSession:           true,
		Metadata: map[string]string{
			"request_id": request.ID.String(),
			"listing_id": listing.ID.String(),
		},
	}
	capture, err := capturePayment(ctx, params)
	if err != nil {
		capture, err = replayCapture(ctx, params, err)
		if err != nil {
			// Still ambiguous after asking the gateway again. A retried
			// accept replays the same idempotency key, but flag it in case
			// the charge landed and no retry ever comes.
			log.Printf("[RECONCILE] capture outcome unknown for request %s: %s\n", request.ID, err.Error())
			return nil, err
		}
	}

	switch capture.State {
	case lib.CAPTURE_DECLINED:
		if request.ConversationID != nil {
			PostSystemMessage(*request.ConversationID, fmt.Sprintf("Payment failed: %s. The request is still pending.", capture.Reason), types.JSONB{"event": "payment_failed"})
		}
		return &AcceptResult{Outcome: ACCEPT_DECLINED, DeclineReason: capture.Reason}, nil
	case lib.CAPTURE_REQUIRES_ACTION:
		if request.ConversationID != nil {
			link := fmt.Sprintf("%s/payments/complete?payment_intent_client_secret=%s", os.Getenv("APP_HOST"), capture.ClientSecret)
			PostSystemMessage(*request.ConversationID, fmt.Sprintf("Your bank needs to verify this payment before the lesson can be booked. Complete it here: %s", link), types.JSONB{"event": "payment_requires_action"})
		}
		return &AcceptResult{Outcome: ACCEPT_REQUIRES_ACTION, ClientSecret: capture.ClientSecret}, nil
	}

	booking, err := finalizeAcceptance(ctx, request, &listing, coach, &athlete, totalCents, capture.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	return &AcceptResult{Outcome: ACCEPT_CONFIRMED, Booking: booking}, nil
}

// finalizeAcceptance runs after a confirmed capture: provision the meeting,
// flip the request and create the booking in one transaction, then notify.
// Meeting provisioning failure degrades to a booking with no meeting links.
// A transaction failure after money has moved is escalated loudly instead of
// refunded automatically.
func finalizeAcceptance(ctx context.Context, request *models.BookingRequest, listing *models.Listing, coach *models.User, athlete *models.User, amountPaidCents int64, paymentIntentId string) (*models.Booking, error) {
	var meeting *lib.ZoomMeeting
	if request.StartsAt != nil {
		hostEmail := coach.ZoomEmail
		if hostEmail == "" {
			hostEmail = coach.Email
		}
		m, err := createMeeting(ctx, listing.Title, *request.StartsAt, listing.DurationMinutes, hostEmail, request.Timezone)
		if err != nil {
			if !errors.Is(err, lib.ErrZoomNotConfigured) {
				log.Printf("Error creating meeting for request %s: %s\n", request.ID, err.Error())
			}
		} else {
			meeting = m
		}
	}

	booking := models.Booking{
		RequestID:       &request.ID,
		ListingID:       listing.ID,
		CoachID:         coach.ID,
		AthleteID:       athlete.ID,
		CustomerEmail:   athlete.Email,
		Type:            types.BOOKING_LIVE_LESSON,
		Status:          types.BOOKING_PAID,
		AmountPaidCents: amountPaidCents,
		Currency:        listing.Currency,
		PaymentIntentId: &paymentIntentId,
		StartsAt:        request.StartsAt,
		EndsAt:          request.EndsAt,
		Timezone:        request.Timezone,
		ConversationID:  request.ConversationID,
	}
	if meeting != nil {
		meetingId := strconv.FormatInt(meeting.ID, 10)
		booking.MeetingID = &meetingId
		booking.MeetingJoinURL = &meeting.JoinURL
		booking.MeetingStartURL = &meeting.StartURL
	}

	d := db.GetDb()
	err := d.Transaction(func(tx *gorm.DB) error {
		if err := TryTransitionRequest(tx, request.ID, types.REQUEST_PENDING, types.REQUEST_ACCEPTED); err != nil {
			return err
		}
		if err := tx.Create(&booking).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			// Lost the race to another accept. The idempotency key on the
			// capture means no second charge was made.
			return nil, err
		}
		log.Printf("[RECONCILE] captured payment %s for request %s but booking creation failed: %s\n", paymentIntentId, request.ID, err.Error())
		return nil, fmt.Errorf("payment captured but booking could not be created for request %s: %w", request.ID, err)
	}
	request.Status = types.REQUEST_ACCEPTED

	if request.ConversationID != nil {
		body := "Request accepted! Your lesson is booked."
		if meeting != nil {
			body = fmt.Sprintf("Request accepted! Your lesson is booked. Join link: %s", meeting.JoinURL)
		}
		PostSystemMessage(*request.ConversationID, body, types.JSONB{"event": "request_accepted", "booking_id": booking.ID.String()})
	}
	SendEmailAsync(athlete.Email, "Your lesson is booked", fmt.Sprintf("%s accepted your booking request for %s.", coach.Name, listing.Title))
	NotifyPushAsync(athlete.ID, "Request accepted", fmt.Sprintf("%s accepted your booking request", coach.Name))
	SyncCalendarAsync(&booking, listing.Title)

	return &booking, nil
}

// CompleteDeferredAcceptance finishes an acceptance whose capture initially
// required additional authentication. Called from the payment webhook once
// the intent succeeds; the request is still pending at that point.
func CompleteDeferredAcceptance(ctx context.Context, requestId uuid.UUID, pi *stripe.PaymentIntent) error {
	d := db.GetDb()
	var request models.BookingRequest
	if err := d.First(&request, "id = ?", requestId).Error; err != nil {
		return err
	}
	if request.Status != types.REQUEST_PENDING {
		return ErrAlreadyProcessed
	}
	var listing models.Listing
	if err := d.First(&listing, "id = ?", request.ListingID).Error; err != nil {
		return err
	}
	var coach models.User
	if err := d.First(&coach, request.CoachID).Error; err != nil {
		return err
	}
	var athlete models.User
	if err := d.First(&athlete, request.AthleteID).Error; err != nil {
		return err
	}
	_, err := finalizeAcceptance(ctx, &request, &listing, &coach, &athlete, pi.Amount, pi.ID)
	return err
}

// DeclineBookingRequest flips a pending request to declined. No money has
// moved yet at decline time, so there is nothing to refund.
func DeclineBookingRequest(request *models.BookingRequest, reason string) error {
	d := db.GetDb()
	if err := TryTransitionRequest(d, request.ID, types.REQUEST_PENDING, types.REQUEST_DECLINED); err != nil {
		return err
	}
	request.Status = types.REQUEST_DECLINED
	if request.ConversationID != nil {
		body := "The coach declined this booking request."
		if reason != "" {
			body = fmt.Sprintf("The coach declined this booking request: %s", reason)
		}
		PostSystemMessage(*request.ConversationID, body, types.JSONB{"event": "request_declined"})
	}
	var athlete models.User
	if err := d.First(&athlete, request.AthleteID).Error; err == nil {
		SendEmailAsync(athlete.Email, "Booking request declined", "Your booking request was declined. You have not been charged.")
		NotifyPushAsync(athlete.ID, "Request declined", "Your booking request was declined")
	}
	return nil
}

// RequestExpiresAt is the moment a pending request stops being actionable.
func RequestExpiresAt(request *models.BookingRequest) time.Time {
	return request.CreatedAt.Add(RequestExpiryWindow)
}
