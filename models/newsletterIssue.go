package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillpost/newsletter_backend/config"
	"github.com/quillpost/newsletter_backend/utils"
)

type NewsletterIssue struct {
	ID          uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	UserId      int       `gorm:"index;not null" json:"user_id"`
	Title       string    `gorm:"size:255;not null" json:"title" binding:"required"`
	TextContent string    `gorm:"type:text;not null" json:"text_content"`
	HtmlContent string    `gorm:"type:text;not null" json:"html_content"`
	PublishedAt time.Time `gorm:"not null" json:"published_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewNewsletterIssue struct {
	Title          string `json:"title" binding:"required"`
	TextContent    string `json:"text_content" binding:"required"`
	HtmlContent    string `json:"html_content" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func GetNewsletterIssue(ctx context.Context, db *gorm.DB, id uuid.UUID) (*NewsletterIssue, error) {
	if db == nil {
		db = config.GetDB()
	}
	var issue NewsletterIssue
	err := db.WithContext(ctx).Where("id = ?", id).First(&issue).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &issue, nil
}
