package common

import (
	"context"
	"log"
	"testing"
	"time"

	"cbs/src/db"
	"cbs/src/lib"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening test database: %s", err.Error())
	}
	err = d.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.BookingRequest{},
		&models.Booking{},
		&models.Conversation{},
		&models.Message{},
		&models.PayoutEvent{},
		&models.Setting{},
	)
	require.NoError(t, err)
	db.NewDB(d)
	t.Cleanup(func() {
		d.Exec("DELETE FROM payout_events")
		d.Exec("DELETE FROM messages")
		d.Exec("DELETE FROM conversations")
		d.Exec("DELETE FROM bookings")
		d.Exec("DELETE FROM booking_requests")
		d.Exec("DELETE FROM listings")
		d.Exec("DELETE FROM settings")
		d.Exec("DELETE FROM users")
	})
	return d
}

type testWorld struct {
	Coach   models.User
	Athlete models.User
	Listing models.Listing
	Request models.BookingRequest
}

func seedLiveLesson(t *testing.T, d *gorm.DB) *testWorld {
	t.Helper()
	accountId := "acct_coach"
	coach := models.User{
		Name:            "Coach Carter",
		Email:           "coach@example.com",
		Role:            string(types.ROLE_COACH),
		StripeAccountId: &accountId,
		PayoutReady:     true,
	}
	require.NoError(t, d.Create(&coach).Error)
	athlete := models.User{
		Name:  "Alex Athlete",
		Email: "athlete@example.com",
		Role:  string(types.ROLE_ATHLETE),
	}
	require.NoError(t, d.Create(&athlete).Error)
	listing := models.Listing{
		CoachID:         coach.ID,
		Title:           "1:1 Shooting Lesson",
		Kind:            types.LISTING_LIVE_LESSON,
		PriceCents:      10000,
		Currency:        "usd",
		DurationMinutes: 60,
	}
	require.NoError(t, d.Create(&listing).Error)

	conversation := models.Conversation{CoachID: coach.ID, AthleteID: athlete.ID}
	require.NoError(t, d.Create(&conversation).Error)

	startsAt := time.Now().Add(48 * time.Hour)
	endsAt := startsAt.Add(time.Hour)
	request := models.BookingRequest{
		ListingID:       listing.ID,
		CoachID:         coach.ID,
		AthleteID:       athlete.ID,
		StartsAt:        &startsAt,
		EndsAt:          &endsAt,
		Timezone:        "America/New_York",
		Status:          types.REQUEST_PENDING,
		ConversationID:  &conversation.ID,
		PaymentMethodID: "pm_test",
	}
	require.NoError(t, d.Create(&request).Error)
	return &testWorld{Coach: coach, Athlete: athlete, Listing: listing, Request: request}
}

// stubGateway points every payment and meeting seam at in-process fakes and
// restores the real clients when the test ends.
type stubGateway struct {
	captures []lib.CaptureParams
	refunds  []string
	capture  func(p *lib.CaptureParams) (*lib.CaptureResult, error)
	meeting  func() (*lib.ZoomMeeting, error)
}

func installStubGateway(t *testing.T) *stubGateway {
	t.Helper()
	g := &stubGateway{
		capture: func(p *lib.CaptureParams) (*lib.CaptureResult, error) {
			return &lib.CaptureResult{State: lib.CAPTURE_SUCCEEDED, PaymentIntentID: "pi_test"}, nil
		},
		meeting: func() (*lib.ZoomMeeting, error) {
			return &lib.ZoomMeeting{ID: 420, Topic: "lesson", JoinURL: "https://zoom.example/j/420", StartURL: "https://zoom.example/s/420"}, nil
		},
	}
	origFind := findOrCreateCustomer
	origAttach := attachPaymentMethod
	origCapture := capturePayment
	origRefund := refundPayment
	origMeeting := createMeeting

	findOrCreateCustomer = func(ctx context.Context, email, name string) (*stripe.Customer, error) {
		return &stripe.Customer{ID: "cus_test", Email: email}, nil
	}
	attachPaymentMethod = func(ctx context.Context, paymentMethodId, customerId string) error {
		return nil
	}
	capturePayment = func(ctx context.Context, p *lib.CaptureParams) (*lib.CaptureResult, error) {
		g.captures = append(g.captures, *p)
		return g.capture(p)
	}
	refundPayment = func(ctx context.Context, paymentIntentId string) (*stripe.Refund, error) {
		g.refunds = append(g.refunds, paymentIntentId)
		return &stripe.Refund{ID: "re_test"}, nil
	}
	createMeeting = func(ctx context.Context, topic string, startTime time.Time, durationMinutes uint, hostEmail, timezone string) (*lib.ZoomMeeting, error) {
		return g.meeting()
	}
	t.Cleanup(func() {
		findOrCreateCustomer = origFind
		attachPaymentMethod = origAttach
		capturePayment = origCapture
		refundPayment = origRefund
		createMeeting = origMeeting
	})
	return g
}
