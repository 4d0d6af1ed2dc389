package models

import (
	"cbs/src/types"
	"time"
)

type User struct {
	ID               uint       `gorm:"primarykey" json:"id"`
	Name             string     `json:"name,omitempty"`
	Email            string     `gorm:"uniqueIndex" json:"email,omitempty"`
	Role             string     `gorm:"default:'athlete'" json:"role,omitempty"`
	EmailVerified    bool       `json:"email_verified,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	ZoomEmail        string     `json:"-"`
	StripeCustomerId *string    `json:"-"`
	StripeAccountId  *string    `json:"-"`
	PayoutReady      bool       `json:"payout_ready,omitempty"`
	LastActive       *time.Time `json:"last_active,omitempty"`

	Listings []Listing `gorm:"foreignKey:coach_id" json:"listings,omitempty"`
	Bookings []Booking `gorm:"foreignKey:athlete_id" json:"bookings,omitempty"`

	types.Timestamps
}
