package models

import (
	"cbs/src/types"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Booking is the paid artifact. AmountPaidCents is written once at creation
// and never recomputed. Live-lesson bookings only exist after a confirmed
// capture; film-review bookings are created at checkout with ReviewStatus
// pending_acceptance.
type Booking struct {
	ID            uuid.UUID           `gorm:"primarykey;type:uuid" json:"id"`
	RequestID     *uuid.UUID          `gorm:"type:uuid" json:"request_id,omitempty"`
	ListingID     uuid.UUID           `gorm:"type:uuid" json:"listing_id,omitempty"`
	CoachID       uint                `json:"coach_id,omitempty"`
	AthleteID     uint                `json:"athlete_id,omitempty"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	Type          types.BookingType   `gorm:"default:'live_lesson'" json:"booking_type,omitempty"`
	Status        types.BookingStatus `gorm:"default:'paid'" json:"status,omitempty"`

	AmountPaidCents int64   `json:"amount_paid_cents,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	PaymentIntentId *string `json:"-"`

	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Timezone string     `json:"timezone,omitempty"`

	MeetingID       *string `json:"meeting_id,omitempty"`
	MeetingJoinURL  *string `json:"meeting_join_url,omitempty"`
	MeetingStartURL *string `json:"-"`

	ConversationID *uuid.UUID `gorm:"type:uuid" json:"conversation_id,omitempty"`

	// Film review fields. FilmURL stays hidden from the coach until the
	// review is accepted.
	FilmURL           string             `json:"-"`
	Notes             string             `json:"notes,omitempty"`
	ReviewStatus      types.ReviewStatus `json:"review_status,omitempty"`
	Review            types.JSONB        `gorm:"type:jsonb" json:"review,omitempty"`
	ReviewDocumentURL *string            `json:"review_document_url,omitempty"`
	ReviewCompletedAt *time.Time         `json:"review_completed_at,omitempty"`
	DeadlineAt        *time.Time         `json:"deadline_at,omitempty"`
	Late              bool               `json:"late,omitempty"`
	HoursLate         uint               `json:"hours_late,omitempty"`

	Listing *Listing `gorm:"foreignKey:listing_id" json:"listing,omitempty"`
	Coach   *User    `gorm:"foreignKey:coach_id" json:"coach,omitempty"`
	Athlete *User    `gorm:"foreignKey:athlete_id" json:"athlete,omitempty"`

	types.Timestamps
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
