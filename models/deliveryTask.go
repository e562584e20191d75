package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryTask is one unit of issue-delivery work: send one issue to one
// subscriber. Rows are inserted in the same transaction as the idempotent
// publish response and deleted by the worker once resolved. The auto-increment
// id doubles as the claim order.
type DeliveryTask struct {
	ID                int64     `gorm:"primary_key" json:"id"`
	NewsletterIssueId uuid.UUID `gorm:"type:char(36);index;not null" json:"newsletter_issue_id"`
	SubscriberEmail   string    `gorm:"size:255;not null" json:"subscriber_email"`
	Attempts          int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}
