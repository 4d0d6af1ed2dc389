package models

import (
	"cbs/src/types"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingRequest is a proposed live lesson awaiting the coach's response.
// Status only ever moves pending -> accepted|declined|expired; the terminal
// update goes through common.TryTransitionRequest so racing writers cannot
// both win.
type BookingRequest struct {
	ID              uuid.UUID           `gorm:"primarykey;type:uuid" json:"id"`
	ListingID       uuid.UUID           `gorm:"type:uuid" json:"listing_id,omitempty"`
	CoachID         uint                `json:"coach_id,omitempty"`
	AthleteID       uint                `json:"athlete_id,omitempty"`
	StartsAt        *time.Time          `json:"starts_at,omitempty"`
	EndsAt          *time.Time          `json:"ends_at,omitempty"`
	Timezone        string              `json:"timezone,omitempty"`
	Status          types.RequestStatus `gorm:"default:'pending'" json:"status,omitempty"`
	ConversationID  *uuid.UUID          `gorm:"type:uuid" json:"conversation_id,omitempty"`
	PaymentMethodID string              `json:"-"`

	Listing *Listing `gorm:"foreignKey:listing_id" json:"listing,omitempty"`
	Coach   *User    `gorm:"foreignKey:coach_id" json:"coach,omitempty"`
	Athlete *User    `gorm:"foreignKey:athlete_id" json:"athlete,omitempty"`

	types.Timestamps
}

func (r *BookingRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
