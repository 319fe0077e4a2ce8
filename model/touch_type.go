package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Step is one tier of a touch type, addressed by its index.
type Step struct {
	DurationMs    int64  `json:"durationMs"`
	TextLong      string `json:"textLong"`
	TextLongAfter string `json:"textLongAfter"`
	TextNotif     string `json:"textNotif"`
	TextShort     string `json:"textShort"`
}

// TouchType is a styled template with ordered steps. Private types are only
// visible to their creator.
type TouchType struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string     `json:"name" gorm:"type:varchar(100);not null"`
	BgColor     string     `json:"bg_color" gorm:"type:varchar(7);not null"`
	TextColor   string     `json:"text_color" gorm:"type:varchar(7);not null"`
	IsDefault   bool       `json:"is_default" gorm:"default:false"`
	IsPrivate   bool       `json:"is_private" gorm:"default:false;index"`
	Steps       []Step     `json:"steps" gorm:"type:text;serializer:json;not null"`
	CreatedByID *uuid.UUID `json:"created_by_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (TouchType) TableName() string {
	return "touch_types"
}

func (t *TouchType) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsVisibleTo reports whether userID may see and use the touch type.
func (t *TouchType) IsVisibleTo(userID uuid.UUID) bool {
	return !t.IsPrivate || (t.CreatedByID != nil && *t.CreatedByID == userID)
}

// UserTouchType is a favorite: a user's ordered subscription to a touch type.
type UserTouchType struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_touch_type"`
	TouchTypeID uuid.UUID `json:"touch_type_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_touch_type;index"`
	Order       int       `json:"order" gorm:"column:sort_order;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`

	TouchType *TouchType `json:"touch_type,omitempty" gorm:"foreignKey:TouchTypeID"`
}

func (UserTouchType) TableName() string {
	return "user_touch_types"
}

func (u *UserTouchType) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
