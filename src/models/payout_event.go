package models

import (
	"cbs/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutEvent is an append-only audit row. Writes are best-effort; a failed
// insert never rolls back the transition that produced it.
type PayoutEvent struct {
	ID          uuid.UUID             `gorm:"primarykey;type:uuid" json:"id"`
	BookingID   uuid.UUID             `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	CoachID     uint                  `json:"coach_id,omitempty"`
	EventType   types.PayoutEventType `json:"event_type,omitempty"`
	AmountCents int64                 `json:"amount_cents,omitempty"`
	Status      string                `gorm:"default:'recorded'" json:"status,omitempty"`

	types.Timestamps
}

func (p *PayoutEvent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
