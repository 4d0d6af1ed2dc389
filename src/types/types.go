package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, &a)
	case string:
		return json.Unmarshal([]byte(v), &a)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

type APIEnv string

const (
	Local      APIEnv = "local"
	Test       APIEnv = "test"
	Production APIEnv = "production"
)

type Role string

const (
	ROLE_ATHLETE Role = "athlete"
	ROLE_COACH   Role = "coach"
	ROLE_ADMIN   Role = "admin"
)

type RequestStatus string

const (
	REQUEST_PENDING  RequestStatus = "pending"
	REQUEST_ACCEPTED RequestStatus = "accepted"
	REQUEST_DECLINED RequestStatus = "declined"
	REQUEST_EXPIRED  RequestStatus = "expired"
)

type BookingStatus string

const (
	// Capture needed bank authentication; the payment webhook promotes
	// the booking to paid once the intent succeeds.
	BOOKING_PENDING_PAYMENT BookingStatus = "pending_payment"
	BOOKING_PAID            BookingStatus = "paid"
	BOOKING_COMPLETED       BookingStatus = "completed"
	BOOKING_CANCELED        BookingStatus = "cancelled"
)

type BookingType string

const (
	BOOKING_LIVE_LESSON BookingType = "live_lesson"
	BOOKING_FILM_REVIEW BookingType = "film_review"
)

type ReviewStatus string

const (
	REVIEW_PENDING_ACCEPTANCE ReviewStatus = "pending_acceptance"
	REVIEW_ACCEPTED           ReviewStatus = "accepted"
	REVIEW_COMPLETED          ReviewStatus = "completed"
	REVIEW_DECLINED           ReviewStatus = "declined"
)

type ListingKind string

const (
	LISTING_LIVE_LESSON ListingKind = "live_lesson"
	LISTING_FILM_REVIEW ListingKind = "film_review"
)

type MessageKind string

const (
	MESSAGE_USER   MessageKind = "user"
	MESSAGE_SYSTEM MessageKind = "system"
)

type PayoutEventType string

const (
	PAYOUT_LESSON_CAPTURED  PayoutEventType = "lesson_captured"
	PAYOUT_REVIEW_COMPLETED PayoutEventType = "review_completed"
	PAYOUT_REFUND_ISSUED    PayoutEventType = "refund_issued"
)

type SimpleRequestParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type RegisterUserRequestBody struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required"`
	Role  string `json:"role,omitempty" binding:"omitempty,oneof=athlete coach"`
}

type LoginRequestBody struct {
	Email string `json:"email" binding:"required,email"`
}

type CreateListingRequestBody struct {
	Title           string `json:"title" binding:"required"`
	Kind            string `json:"kind" binding:"required,oneof=live_lesson film_review"`
	PriceCents      int64  `json:"price_cents" binding:"required,gt=0"`
	Currency        string `json:"currency" binding:"required,len=3"`
	DurationMinutes uint   `json:"duration_minutes,omitempty"`
	TurnaroundHours uint   `json:"turnaround_hours,omitempty"`
}

type CreateBookingRequestBody struct {
	ListingID       string `json:"listing_id" binding:"required,uuid"`
	StartsAt        string `json:"starts_at" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	EndsAt          string `json:"ends_at" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	Timezone        string `json:"timezone" binding:"required"`
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

type FilmReviewCheckoutRequestBody struct {
	ListingID       string `json:"listing_id" binding:"required,uuid"`
	FilmURL         string `json:"film_url" binding:"required,reviewdoc"`
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
	Notes           string `json:"notes,omitempty"`
}

type UploadReviewRequestBody struct {
	OverallAssessment   string `json:"overall_assessment" binding:"required,min=200"`
	Strengths           string `json:"strengths" binding:"required,min=100"`
	AreasForImprovement string `json:"areas_for_improvement" binding:"required,min=100"`
	RecommendedDrills   string `json:"recommended_drills" binding:"required,min=100"`
	KeyTimestamps       string `json:"key_timestamps,omitempty"`
	SupplementalURL     string `json:"supplemental_url,omitempty" binding:"omitempty,reviewdoc"`
	SupplementalKey     string `json:"supplemental_key,omitempty"`
}

type UpdateCommissionSettingsRequestBody struct {
	PlatformFeePct   *float64 `json:"platform_fee_pct" binding:"required,gte=0"`
	AthleteFeePct    *float64 `json:"athlete_fee_pct" binding:"required,gte=0"`
	AthleteFlatCents *int64   `json:"athlete_flat_cents" binding:"required,gte=0"`
}

type Handler func(payload string)
