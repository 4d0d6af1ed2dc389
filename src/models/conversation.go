package models

import (
	"cbs/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID        uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	CoachID   uint      `json:"coach_id,omitempty"`
	AthleteID uint      `json:"athlete_id,omitempty"`

	Messages []Message `gorm:"foreignKey:conversation_id" json:"messages,omitempty"`

	types.Timestamps
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Message rows with a nil SenderID and Kind system carry the state-machine
// notifications (acceptance, decline, payment failure, expiry).
type Message struct {
	ID             uuid.UUID         `gorm:"primarykey;type:uuid" json:"id"`
	ConversationID uuid.UUID         `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	SenderID       *uint             `json:"sender_id,omitempty"`
	Kind           types.MessageKind `gorm:"default:'user'" json:"kind,omitempty"`
	Body           string            `json:"body,omitempty"`
	Metadata       types.JSONB       `gorm:"type:jsonb" json:"metadata,omitempty"`

	types.Timestamps
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
