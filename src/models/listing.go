package models

import (
	"cbs/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Listing struct {
	ID              uuid.UUID         `gorm:"primarykey;type:uuid" json:"id"`
	CoachID         uint              `json:"coach_id,omitempty"`
	Title           string            `json:"title,omitempty"`
	Slug            string            `gorm:"index" json:"slug,omitempty"`
	Kind            types.ListingKind `json:"kind,omitempty"`
	PriceCents      int64             `json:"price_cents,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	DurationMinutes uint              `json:"duration_minutes,omitempty"`
	TurnaroundHours uint              `json:"turnaround_hours,omitempty"`

	Coach *User `gorm:"foreignKey:coach_id" json:"coach,omitempty"`

	types.Timestamps
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
