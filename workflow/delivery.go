package workflow

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quillpost/newsletter_backend/models"
)

// EnqueueDeliveryTasks inserts one delivery task per confirmed subscriber for
// the given issue. Must run on the same transaction as SaveResponse so a
// replayed publish never double-enqueues. Returns the number of tasks queued.
func EnqueueDeliveryTasks(tx *gorm.DB, issueID uuid.UUID) (int64, error) {
	res := tx.Exec(`
		INSERT INTO delivery_tasks (newsletter_issue_id, subscriber_email, attempts, created_at)
		SELECT ?, email, 0, ? FROM subscribers WHERE status = ?`,
		issueID, time.Now().UTC(), models.SubscriberStatusConfirmed)
	return res.RowsAffected, res.Error
}

// ClaimDeliveryTask locks the oldest unclaimed task for the duration of the
// caller's transaction. SKIP LOCKED makes concurrent workers pick disjoint
// rows instead of queueing on each other's locks; a claim held by a crashed
// worker is released when its transaction aborts. Returns (nil, nil) when the
// queue is empty.
func ClaimDeliveryTask(tx *gorm.DB) (*models.DeliveryTask, error) {
	var task models.DeliveryTask
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Order("id ASC").
		First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// ResolveDeliveryTask removes a claimed task. Called on success and on
// permanent or poisoned failures.
func ResolveDeliveryTask(tx *gorm.DB, taskID int64) error {
	return tx.Where("id = ?", taskID).Delete(&models.DeliveryTask{}).Error
}

// RecordDeliveryFailure bumps the attempt counter on a claimed task without
// resolving it. Committing the claim transaction afterwards releases the lock,
// so the task becomes eligible for reclaim.
func RecordDeliveryFailure(tx *gorm.DB, taskID int64) error {
	return tx.Model(&models.DeliveryTask{}).
		Where("id = ?", taskID).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}
