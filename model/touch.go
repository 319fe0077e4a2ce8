package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Touch is a directed interaction. Each side can hide it from its own view.
type Touch struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	FromUserID      uuid.UUID `json:"from_user_id" gorm:"type:uuid;not null;index"`
	ToUserID        uuid.UUID `json:"to_user_id" gorm:"type:uuid;not null;index"`
	TouchTypeID     uuid.UUID `json:"touch_type_id" gorm:"type:uuid;not null;index"`
	StepIndex       int       `json:"step_index" gorm:"not null"`
	HideForUserTo   bool      `json:"hide_for_user_to" gorm:"default:false"`
	HideForUserFrom bool      `json:"hide_for_user_from" gorm:"default:false"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (Touch) TableName() string {
	return "touches"
}

func (t *Touch) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Hidden reports whether either side has hidden the touch.
func (t *Touch) Hidden() bool {
	return t.HideForUserTo || t.HideForUserFrom
}

// Installation is a device registered for push notifications.
type Installation struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	DeviceType  string    `json:"device_type" gorm:"type:varchar(20);not null"` // 'ios' | 'android'
	DeviceToken string    `json:"device_token" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Installation) TableName() string {
	return "installations"
}

func (i *Installation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
