package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestDenied   = "denied"
)

// FriendRequest is directed while pending; once accepted it makes both users friends.
type FriendRequest struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RequesterID uuid.UUID `json:"requester_id" gorm:"type:uuid;not null;index"`
	TargetID    uuid.UUID `json:"target_id" gorm:"type:uuid;not null;index"`
	Status      string    `json:"status" gorm:"type:varchar(20);not null;default:pending"` // pending | accepted | denied
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Requester *User `json:"requester,omitempty" gorm:"foreignKey:RequesterID"`
}

func (FriendRequest) TableName() string {
	return "friend_requests"
}

func (r *FriendRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
