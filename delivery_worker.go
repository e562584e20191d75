package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/quillpost/newsletter_backend/config"
	"github.com/quillpost/newsletter_backend/mailer"
	"github.com/quillpost/newsletter_backend/models"
	"github.com/quillpost/newsletter_backend/utils"
	"github.com/quillpost/newsletter_backend/workflow"
)

// DeliveryWorker drains the delivery_tasks queue: one task per cycle, one
// transaction per task. The row lock taken by the claim spans the send, so a
// crash mid-send rolls back and releases the task for another instance.
// Any number of workers may run against the same queue; SKIP LOCKED keeps
// their claims disjoint.
type DeliveryWorker struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Mailer   mailer.Sender
	WorkerID string

	// PollInterval is the idle/backoff sleep between cycles that made no
	// progress. Successful deliveries loop immediately to drain bursts.
	PollInterval time.Duration
	// MaxAttempts is the transient-failure ceiling; a task that fails
	// transiently this many times is resolved as poison.
	MaxAttempts int
}

func NewDeliveryWorker(db *gorm.DB, logger *logrus.Logger, sender mailer.Sender) *DeliveryWorker {
	w := &DeliveryWorker{
		DB:           db,
		Logger:       logger,
		Mailer:       sender,
		WorkerID:     "delivery-" + uuid.NewString(),
		PollInterval: time.Second,
		MaxAttempts:  5,
	}
	if v := strings.TrimSpace(os.Getenv("DELIVERY_POLL_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			w.PollInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("DELIVERY_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			w.MaxAttempts = n
		}
	}
	return w
}

type deliveryOutcome int

const (
	// deliveryOutcomeProgress: a task was resolved (delivered, permanent
	// failure, or poison); claim the next one immediately.
	deliveryOutcomeProgress deliveryOutcome = iota
	// deliveryOutcomeEmptyQueue: nothing claimable; sleep before polling again.
	deliveryOutcomeEmptyQueue
	// deliveryOutcomeRetryLater: transient failure or store error; back off so
	// a struggling transport or database gets room to recover.
	deliveryOutcomeRetryLater
)

// Run loops until ctx is cancelled. Cancellation is only observed between
// cycles: a claimed task always runs to resolution before the worker exits.
func (w *DeliveryWorker) Run(ctx context.Context) {
	if w == nil || w.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	w.Logger.WithFields(logrus.Fields{
		"field":     "DeliveryWorker",
		"worker_id": w.WorkerID,
	}).Info("delivery worker started")
	for {
		select {
		case <-ctx.Done():
			w.Logger.WithFields(logrus.Fields{
				"field":     "DeliveryWorker",
				"worker_id": w.WorkerID,
			}).Info("delivery worker shutting down")
			return
		default:
		}
		if w.executeOnce(ctx) == deliveryOutcomeProgress {
			continue
		}
		select {
		case <-ctx.Done():
			w.Logger.WithFields(logrus.Fields{
				"field":     "DeliveryWorker",
				"worker_id": w.WorkerID,
			}).Info("delivery worker shutting down")
			return
		case <-time.After(w.PollInterval):
		}
	}
}

// executeOnce claims, sends, and resolves at most one task.
func (w *DeliveryWorker) executeOnce(ctx context.Context) deliveryOutcome {
	outcome := deliveryOutcomeEmptyQueue
	// The send deliberately happens inside the claim transaction: holding the
	// row lock across the transport call is what keeps a task invisible to
	// other workers while an attempt is in flight.
	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := workflow.ClaimDeliveryTask(tx)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}

		issue, err := models.GetNewsletterIssue(ctx, tx, task.NewsletterIssueId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				// Should not happen: tasks are enqueued in the same transaction
				// as the issue row. Resolve rather than retry forever.
				w.logTaskError(task, "newsletter issue missing, dropping task", err)
				outcome = deliveryOutcomeProgress
				return workflow.ResolveDeliveryTask(tx, task.ID)
			}
			return err
		}

		sendErr := w.Mailer.Send(ctx, task.SubscriberEmail, issue.Title, issue.HtmlContent, issue.TextContent)
		if sendErr == nil {
			outcome = deliveryOutcomeProgress
			return workflow.ResolveDeliveryTask(tx, task.ID)
		}

		var se *mailer.SendError
		if errors.As(sendErr, &se) && se.Transient() {
			if task.Attempts+1 >= w.MaxAttempts {
				// Poison: forward progress over unbounded retry. Deliberate
				// data loss, logged for operator follow-up.
				w.logTaskError(task, "retry ceiling reached, resolving as permanently failed", sendErr)
				outcome = deliveryOutcomeProgress
				return workflow.ResolveDeliveryTask(tx, task.ID)
			}
			w.Logger.WithFields(logrus.Fields{
				"field":               "DeliveryWorker",
				"worker_id":           w.WorkerID,
				"task_id":             task.ID,
				"newsletter_issue_id": task.NewsletterIssueId,
				"subscriber_email":    task.SubscriberEmail,
				"attempts":            task.Attempts + 1,
			}).Warn("transient delivery failure, task left for retry: " + sendErr.Error())
			outcome = deliveryOutcomeRetryLater
			return workflow.RecordDeliveryFailure(tx, task.ID)
		}

		w.logTaskError(task, "permanent delivery failure, resolving task", sendErr)
		outcome = deliveryOutcomeProgress
		return workflow.ResolveDeliveryTask(tx, task.ID)
	})
	if err != nil {
		config.LogError(w.Logger, "delivery_worker.go", "executeOnce", w.WorkerID, nil, err)
		return deliveryOutcomeRetryLater
	}
	return outcome
}

func (w *DeliveryWorker) logTaskError(task *models.DeliveryTask, msg string, err error) {
	w.Logger.WithFields(logrus.Fields{
		"field":               "DeliveryWorker",
		"worker_id":           w.WorkerID,
		"task_id":             task.ID,
		"newsletter_issue_id": task.NewsletterIssueId,
		"subscriber_email":    task.SubscriberEmail,
		"attempts":            task.Attempts,
	}).Error(msg + ": " + err.Error())
}
