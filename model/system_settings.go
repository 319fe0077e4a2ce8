package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemSettings holds admin-editable runtime flags.
type SystemSettings struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SettingKey   string    `json:"setting_key" gorm:"type:varchar(100);uniqueIndex;not null"`
	SettingValue string    `json:"setting_value" gorm:"not null"`
	Description  string    `json:"description"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (SystemSettings) TableName() string {
	return "system_settings"
}

func (s *SystemSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
