package workflow

import (
	"context"
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/quillpost/newsletter_backend/models"
)

// ErrIdempotencyInProgress signals that another execution holds the key and
// has not yet saved its response. Callers surface this as a retryable client
// error; there is no blocking wait.
var ErrIdempotencyInProgress = errors.New("a request with this idempotency key is already being processed")

// SavedResponse is the replayable outcome of an idempotent request. Headers
// keep their original order and duplicates; Body is the exact bytes written to
// the first caller.
type SavedResponse struct {
	StatusCode int
	Headers    []models.HeaderPair
	Body       []byte
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// TryProcessing claims (userID, key) for this request or yields the previously
// saved response. Returns (nil, nil) when the key is novel: the claim row is
// committed and the caller must run the side-effecting logic and finish with
// SaveResponse. Returns the saved response for a repeated key, and
// ErrIdempotencyInProgress when the first execution has not completed yet.
//
// The ledger's unique constraint is the serialization point: of any number of
// concurrent calls with the same key, exactly one insert succeeds. The losers
// read the winner's row back inside the same transaction so there is no window
// between "conflict observed" and "row visible".
func TryProcessing(ctx context.Context, db *gorm.DB, userID int, key IdempotencyKey) (*SavedResponse, error) {
	var saved *SavedResponse
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := models.IdempotencyRecord{
			UserId:         userID,
			IdempotencyKey: key.String(),
		}
		if err := tx.Create(&rec).Error; err == nil {
			return nil
		} else if !isDuplicateKeyErr(err) {
			return err
		}

		var existing models.IdempotencyRecord
		if err := tx.Where("user_id = ? AND idempotency_key = ?", userID, key.String()).
			First(&existing).Error; err != nil {
			return err
		}
		if existing.ResponseStatus == nil {
			return ErrIdempotencyInProgress
		}

		headers, err := models.DecodeHeaderPairs(existing.ResponseHeaders)
		if err != nil {
			return err
		}
		saved = &SavedResponse{
			StatusCode: *existing.ResponseStatus,
			Headers:    headers,
			Body:       existing.ResponseBody,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SaveResponse fills in the response columns of the in-progress row claimed by
// TryProcessing. It runs on the caller's transaction: enqueue any side-effect
// rows (delivery tasks) on the same tx so "response replayable" and "side
// effects durably scheduled" commit atomically.
func SaveResponse(tx *gorm.DB, userID int, key IdempotencyKey, resp *SavedResponse) error {
	rawHeaders, err := models.EncodeHeaderPairs(resp.Headers)
	if err != nil {
		return err
	}
	res := tx.Model(&models.IdempotencyRecord{}).
		Where("user_id = ? AND idempotency_key = ? AND response_status IS NULL", userID, key.String()).
		Updates(map[string]interface{}{
			"response_status":  resp.StatusCode,
			"response_headers": rawHeaders,
			"response_body":    resp.Body,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("no in-progress idempotency record for user %d key %q", userID, key.String())
	}
	return nil
}
