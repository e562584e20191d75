package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionToken links a confirmation-link token to a pending subscriber.
// Tokens are single-purpose: once the subscriber confirms, the row is inert
// (re-confirming is a no-op).
type SubscriptionToken struct {
	Token        string    `gorm:"primary_key;size:32" json:"-"`
	SubscriberId uuid.UUID `gorm:"type:char(36);index;not null" json:"subscriber_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
