package workflow_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillpost/newsletter_backend/models"
	"github.com/quillpost/newsletter_backend/workflow"
)

func mustKey(t *testing.T, raw string) workflow.IdempotencyKey {
	t.Helper()
	key, err := workflow.ParseIdempotencyKey(raw)
	if err != nil {
		t.Fatalf("parse idempotency key %q: %v", raw, err)
	}
	return key
}

func seedSubscriber(t *testing.T, db *gorm.DB, email string, status models.SubscriberStatus) {
	t.Helper()
	sub := models.Subscriber{
		ID:     uuid.New(),
		Email:  email,
		Name:   "Test Subscriber",
		Status: status,
	}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscriber %s: %v", email, err)
	}
}

func TestTryProcessingReplaysSavedResponse(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	key := mustKey(t, "issue-1")

	saved, err := workflow.TryProcessing(ctx, db, 1, key)
	if err != nil {
		t.Fatalf("first TryProcessing: %v", err)
	}
	if saved != nil {
		t.Fatalf("expected StartProcessing on novel key, got saved response")
	}

	resp := &workflow.SavedResponse{
		StatusCode: http.StatusOK,
		Headers: []models.HeaderPair{
			{Name: "Content-Type", Value: "application/json; charset=utf-8"},
			{Name: "X-Flash", Value: "first"},
			{Name: "X-Flash", Value: "second"},
		},
		Body: []byte(`{"ok":true}`),
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		return workflow.SaveResponse(tx, 1, key, resp)
	})
	if err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}

	replayed, err := workflow.TryProcessing(ctx, db, 1, key)
	if err != nil {
		t.Fatalf("second TryProcessing: %v", err)
	}
	if replayed == nil {
		t.Fatalf("expected saved response on repeated key")
	}
	if replayed.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", replayed.StatusCode)
	}
	if !bytes.Equal(replayed.Body, resp.Body) {
		t.Fatalf("expected identical body, got %q", replayed.Body)
	}
	if len(replayed.Headers) != 3 {
		t.Fatalf("expected 3 headers, got %d", len(replayed.Headers))
	}
	for i, pair := range resp.Headers {
		if replayed.Headers[i] != pair {
			t.Fatalf("header %d: expected %+v, got %+v", i, pair, replayed.Headers[i])
		}
	}
}

func TestTryProcessingScopesKeysPerUser(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	key := mustKey(t, "shared-key")

	if _, err := workflow.TryProcessing(ctx, db, 1, key); err != nil {
		t.Fatalf("user 1 TryProcessing: %v", err)
	}
	saved, err := workflow.TryProcessing(ctx, db, 2, key)
	if err != nil {
		t.Fatalf("user 2 TryProcessing: %v", err)
	}
	if saved != nil {
		t.Fatalf("expected user 2 to get its own claim for the same key")
	}
}

func TestTryProcessingSignalsInProgress(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	key := mustKey(t, "in-flight")

	if _, err := workflow.TryProcessing(ctx, db, 1, key); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err := workflow.TryProcessing(ctx, db, 1, key)
	if !errors.Is(err, workflow.ErrIdempotencyInProgress) {
		t.Fatalf("expected ErrIdempotencyInProgress, got %v", err)
	}
}

func TestConcurrentTryProcessingClaimsExactlyOnce(t *testing.T) {
	db := setupIntegrationDB(t)
	key := mustKey(t, "race-key")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	starts := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			saved, err := workflow.TryProcessing(context.Background(), db, 1, key)
			results[i] = err
			starts[i] = err == nil && saved == nil
		}(i)
	}
	wg.Wait()

	var startCount, inProgressCount int
	for i := 0; i < callers; i++ {
		if starts[i] {
			startCount++
			continue
		}
		if errors.Is(results[i], workflow.ErrIdempotencyInProgress) {
			inProgressCount++
			continue
		}
		t.Fatalf("caller %d: unexpected result err=%v", i, results[i])
	}
	if startCount != 1 {
		t.Fatalf("expected exactly one StartProcessing, got %d", startCount)
	}
	if inProgressCount != callers-1 {
		t.Fatalf("expected %d in-progress signals, got %d", callers-1, inProgressCount)
	}
}

func TestSaveResponseCommitsAtomicallyWithEnqueuedTasks(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	key := mustKey(t, "issue-42")

	seedSubscriber(t, db, "a@example.com", models.SubscriberStatusConfirmed)
	seedSubscriber(t, db, "b@example.com", models.SubscriberStatusConfirmed)
	seedSubscriber(t, db, "c@example.com", models.SubscriberStatusConfirmed)
	seedSubscriber(t, db, "pending@example.com", models.SubscriberStatusPending)

	if _, err := workflow.TryProcessing(ctx, db, 1, key); err != nil {
		t.Fatalf("claim: %v", err)
	}

	issue := models.NewsletterIssue{
		ID:          uuid.New(),
		UserId:      1,
		Title:       "Issue 42",
		TextContent: "text",
		HtmlContent: "<p>html</p>",
		PublishedAt: time.Now().UTC(),
	}
	resp := &workflow.SavedResponse{StatusCode: http.StatusCreated, Body: []byte(`{"enqueued":3}`)}

	publishTx := func(tx *gorm.DB) error {
		if err := tx.Create(&issue).Error; err != nil {
			return err
		}
		enqueued, err := workflow.EnqueueDeliveryTasks(tx, issue.ID)
		if err != nil {
			return err
		}
		if enqueued != 3 {
			t.Fatalf("expected 3 enqueued tasks, got %d", enqueued)
		}
		return workflow.SaveResponse(tx, 1, key, resp)
	}

	// Force a rollback after everything succeeded: nothing may be visible.
	sentinel := errors.New("interrupted before commit")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := publishTx(tx); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel rollback error, got %v", err)
	}

	var taskCount int64
	if err := db.Model(&models.DeliveryTask{}).Count(&taskCount).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if taskCount != 0 {
		t.Fatalf("expected rollback to leave no delivery tasks, found %d", taskCount)
	}
	if _, err := workflow.TryProcessing(ctx, db, 1, key); !errors.Is(err, workflow.ErrIdempotencyInProgress) {
		t.Fatalf("expected claim to still be in progress after rollback, got %v", err)
	}

	// Now commit for real: response replayable and tasks visible together.
	if err := db.Transaction(publishTx); err != nil {
		t.Fatalf("publish transaction: %v", err)
	}
	if err := db.Model(&models.DeliveryTask{}).Count(&taskCount).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if taskCount != 3 {
		t.Fatalf("expected 3 delivery tasks after commit, found %d", taskCount)
	}
	replayed, err := workflow.TryProcessing(ctx, db, 1, key)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed == nil || replayed.StatusCode != http.StatusCreated {
		t.Fatalf("expected saved 201 response, got %+v", replayed)
	}
}

func TestSaveResponseWithoutClaimErrors(t *testing.T) {
	db := setupIntegrationDB(t)
	key := mustKey(t, "never-claimed")

	err := db.Transaction(func(tx *gorm.DB) error {
		return workflow.SaveResponse(tx, 1, key, &workflow.SavedResponse{StatusCode: 200})
	})
	if err == nil {
		t.Fatalf("expected error saving response without a prior claim")
	}
}
