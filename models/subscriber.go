package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillpost/newsletter_backend/config"
	"github.com/quillpost/newsletter_backend/utils"
)

type SubscriberStatus string

const (
	SubscriberStatusPending   SubscriberStatus = "pending_confirmation"
	SubscriberStatusConfirmed SubscriberStatus = "confirmed"
)

type Subscriber struct {
	ID        uuid.UUID        `gorm:"type:char(36);primary_key" json:"id"`
	Email     string           `gorm:"size:255;not null;unique" json:"email" binding:"required"`
	Name      string           `gorm:"size:100;not null" json:"name" binding:"required"`
	Status    SubscriberStatus `gorm:"type:enum('pending_confirmation', 'confirmed');default:pending_confirmation" json:"status"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSubscription struct {
	Name  string `json:"name" form:"name" binding:"required"`
	Email string `json:"email" form:"email" binding:"required"`
}

func GetSubscriberByEmail(ctx context.Context, email string) (*Subscriber, error) {
	db := config.GetDB()
	var subscriber Subscriber
	err := db.WithContext(ctx).Where("email = ?", email).First(&subscriber).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &subscriber, nil
}

// GetSubscriberIdFromToken resolves a confirmation-link token to the pending
// subscriber it was issued for.
func GetSubscriberIdFromToken(ctx context.Context, token string) (uuid.UUID, error) {
	db := config.GetDB()
	var rec SubscriptionToken
	err := db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, utils.ErrorRecordNotFound
		}
		return uuid.Nil, err
	}
	return rec.SubscriberId, nil
}

func ConfirmSubscriber(ctx context.Context, subscriberId uuid.UUID) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&Subscriber{}).
		Where("id = ?", subscriberId).
		Update("status", SubscriberStatusConfirmed).Error
}

func CountConfirmedSubscribers(ctx context.Context) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).
		Model(&Subscriber{}).
		Where("status = ?", SubscriberStatusConfirmed).
		Count(&count).Error
	return count, err
}
