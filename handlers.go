package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillpost/newsletter_backend/config"
	"github.com/quillpost/newsletter_backend/mailer"
	"github.com/quillpost/newsletter_backend/models"
	"github.com/quillpost/newsletter_backend/utils"
	"github.com/quillpost/newsletter_backend/workflow"
)

const sessionTTL = 24 * time.Hour

func subscribeHandler(sender mailer.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var input models.NewSubscription
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
			return
		}
		if err := utils.ValidateSubscriberEmail(input.Email); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()

		// Re-subscribing is benign: a confirmed subscriber gets a friendly ack,
		// a pending one gets a fresh confirmation mail.
		existing, err := models.GetSubscriberByEmail(ctx, input.Email)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			config.LogError(logger, "handlers.go", "subscribeHandler", "lookup subscriber", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if existing != nil && existing.Status == models.SubscriberStatusConfirmed {
			c.JSON(http.StatusOK, gin.H{"status": string(models.SubscriberStatusConfirmed)})
			return
		}

		token, err := utils.GenerateSubscriptionToken()
		if err != nil {
			config.LogError(logger, "handlers.go", "subscribeHandler", "generate token", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			subscriberID := uuid.New()
			if existing != nil {
				subscriberID = existing.ID
			} else {
				subscriber := models.Subscriber{
					ID:     subscriberID,
					Email:  strings.TrimSpace(input.Email),
					Name:   strings.TrimSpace(input.Name),
					Status: models.SubscriberStatusPending,
				}
				if err := tx.Create(&subscriber).Error; err != nil {
					return err
				}
			}
			return tx.Create(&models.SubscriptionToken{
				Token:        token,
				SubscriberId: subscriberID,
			}).Error
		})
		if err != nil {
			config.LogError(logger, "handlers.go", "subscribeHandler", "store subscription", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if err := sendConfirmationEmail(c, sender, input.Email, token); err != nil {
			config.LogError(logger, "handlers.go", "subscribeHandler", "send confirmation email", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send confirmation email"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"status": string(models.SubscriberStatusPending)})
	}
}

func sendConfirmationEmail(c *gin.Context, sender mailer.Sender, email, token string) error {
	baseURL := strings.TrimRight(os.Getenv("APP_BASE_URL"), "/")
	link := fmt.Sprintf("%s/subscriptions/confirm?subscription_token=%s", baseURL, token)
	html := fmt.Sprintf(
		"Welcome to our newsletter!<br />Click <a href=\"%s\">here</a> to confirm your subscription.", link)
	text := fmt.Sprintf(
		"Welcome to our newsletter!\nVisit %s to confirm your subscription.", link)
	return sender.Send(c.Request.Context(), email, "Please confirm your subscription", html, text)
}

func confirmSubscriptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		token := c.Query("subscription_token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subscription_token is required"})
			return
		}

		ctx := c.Request.Context()
		subscriberID, err := models.GetSubscriberIdFromToken(ctx, token)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown subscription token"})
				return
			}
			config.LogError(logger, "handlers.go", "confirmSubscriptionHandler", "lookup token", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if err := models.ConfirmSubscriber(ctx, subscriberID); err != nil {
			config.LogError(logger, "handlers.go", "confirmSubscriptionHandler", "confirm subscriber", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": string(models.SubscriberStatusConfirmed)})
	}
}

// publishNewsletterHandler is the idempotent write path. The idempotency key
// scopes retries per admin user; a repeated request replays the saved
// response byte for byte and enqueues nothing.
func publishNewsletterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		userID, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input models.NewNewsletterIssue
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title, text_content, html_content and idempotency_key are required"})
			return
		}
		key, err := workflow.ParseIdempotencyKey(input.IdempotencyKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()

		saved, err := workflow.TryProcessing(ctx, db, userID, key)
		if err != nil {
			if errors.Is(err, workflow.ErrIdempotencyInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "publish already in progress"})
				return
			}
			config.LogError(logger, "handlers.go", "publishNewsletterHandler", "try processing", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if saved != nil {
			writeSavedResponse(c, saved)
			return
		}

		issue := models.NewsletterIssue{
			ID:          uuid.New(),
			UserId:      userID,
			Title:       input.Title,
			TextContent: input.TextContent,
			HtmlContent: input.HtmlContent,
			PublishedAt: time.Now().UTC(),
		}
		var resp *workflow.SavedResponse
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&issue).Error; err != nil {
				return err
			}
			enqueued, err := workflow.EnqueueDeliveryTasks(tx, issue.ID)
			if err != nil {
				return err
			}
			body, err := json.Marshal(gin.H{
				"newsletter_issue_id": issue.ID,
				"enqueued_deliveries": enqueued,
			})
			if err != nil {
				return err
			}
			resp = &workflow.SavedResponse{
				StatusCode: http.StatusCreated,
				Headers: []models.HeaderPair{
					{Name: "Content-Type", Value: "application/json; charset=utf-8"},
				},
				Body: body,
			}
			// Same transaction as the enqueue: either the response is
			// replayable AND the deliveries are scheduled, or neither.
			return workflow.SaveResponse(tx, userID, key, resp)
		})
		if err != nil {
			config.LogError(logger, "handlers.go", "publishNewsletterHandler", "publish issue", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		writeSavedResponse(c, resp)
	}
}

// writeSavedResponse emits a SavedResponse without gin rewriting anything;
// replays must match the original bytes and header order exactly.
func writeSavedResponse(c *gin.Context, resp *workflow.SavedResponse) {
	header := c.Writer.Header()
	for _, pair := range resp.Headers {
		header.Add(pair.Name, pair.Value)
	}
	c.Writer.WriteHeader(resp.StatusCode)
	_, _ = c.Writer.Write(resp.Body)
}

// subscriberStatsHandler backs the admin dashboard's audience count.
func subscriberStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := models.CountConfirmedSubscribers(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "handlers.go", "subscriberStatsHandler", "count subscribers", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"confirmed_subscribers": count})
	}
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var input models.LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}

		user, err := models.GetUserByUsername(c.Request.Context(), input.Username)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			config.LogError(logger, "handlers.go", "loginHandler", "lookup user", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if user.IsActive != nil && !*user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err := utils.ComparePassword(user.Password, input.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token := uuid.NewString()
		if err := config.SetRedisValue("Session:"+token, strconv.Itoa(user.ID), sessionTTL); err != nil {
			config.LogError(logger, "handlers.go", "loginHandler", "store session", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "name": user.Name})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if ok {
			_ = config.DeleteRedisValue("Session:" + token)
		}
		c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
	}
}
