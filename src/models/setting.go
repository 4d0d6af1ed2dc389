package models

import (
	"cbs/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Setting struct {
	ID           uuid.UUID   `gorm:"primarykey;type:uuid" json:"id"`
	SettingKey   string      `gorm:"uniqueIndex:name" json:"setting_key"`
	SettingValue types.JSONB `gorm:"type:jsonb" json:"setting_value"`
	Group        string      `gorm:"uniqueIndex:name" json:"group,omitempty"`

	types.Timestamps
}

func (s *Setting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
