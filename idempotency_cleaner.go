package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/quillpost/newsletter_backend/config"
)

// IdempotencyCleaner purges ledger rows past their retention window. The
// guard itself never deletes; retention is an operator concern run here as a
// background loop. A redis lock keeps concurrent instances from purging at
// the same time (harmless if they did, but wasteful).
type IdempotencyCleaner struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	TTL       time.Duration
	Interval  time.Duration
	BatchSize int
}

func NewIdempotencyCleaner(db *gorm.DB, logger *logrus.Logger) *IdempotencyCleaner {
	c := &IdempotencyCleaner{
		DB:        db,
		Logger:    logger,
		TTL:       48 * time.Hour,
		Interval:  time.Hour,
		BatchSize: 500,
	}
	if v := strings.TrimSpace(os.Getenv("IDEMPOTENCY_TTL_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TTL = time.Duration(n) * time.Hour
		}
	}
	if v := strings.TrimSpace(os.Getenv("IDEMPOTENCY_CLEAN_INTERVAL_MINUTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Interval = time.Duration(n) * time.Minute
		}
	}
	return c
}

func (c *IdempotencyCleaner) Run(ctx context.Context) {
	if c == nil || c.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.cleanOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.Interval):
		}
	}
}

func (c *IdempotencyCleaner) cleanOnce(ctx context.Context) {
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "idempotency-cleaner", c.Interval/2, nil)
		if err != nil {
			if !errors.Is(err, redislock.ErrNotObtained) {
				config.LogError(c.Logger, "idempotency_cleaner.go", "cleanOnce", "obtain lock", nil, err)
			}
			return
		}
		defer lock.Release(ctx)
	}

	cutoff := time.Now().UTC().Add(-c.TTL)
	var total int64
	for {
		res := c.DB.WithContext(ctx).
			Exec("DELETE FROM idempotency_records WHERE created_at < ? LIMIT ?", cutoff, c.BatchSize)
		if res.Error != nil {
			config.LogError(c.Logger, "idempotency_cleaner.go", "cleanOnce", "delete batch", nil, res.Error)
			return
		}
		total += res.RowsAffected
		if res.RowsAffected < int64(c.BatchSize) {
			break
		}
	}
	if total > 0 {
		c.Logger.WithFields(logrus.Fields{
			"field":   "IdempotencyCleaner",
			"deleted": total,
			"cutoff":  cutoff,
		}).Info("purged expired idempotency records")
	}
}
