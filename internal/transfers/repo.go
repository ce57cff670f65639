package transfers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Repository persists scheduled transfers.
type Repository interface {
	Create(ctx context.Context, row *models.ScheduledTransfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ScheduledTransfer, error)
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]uuid.UUID, error)
	Claim(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error)
	Finish(ctx context.Context, id uuid.UUID, outcome Outcome) error
	Reschedule(ctx context.Context, id uuid.UUID, retry Retry) error
	Cancel(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error)
}

// Outcome is the terminal state written after an execution attempt.
type Outcome struct {
	Status         enums.ScheduledTransferStatus
	TransactionRef string
	FailureReason  string
	At             time.Time
}

// Retry puts a claimed row back to pending after a retryable failure.
type Retry struct {
	Reason        string
	NextAttemptAt time.Time
	At            time.Time
}

// claimable matches rows that are due and pending, or stuck in processing
// since before the lease cutoff.
const claimable = "((status = ? AND execute_at <= ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (status = ? AND updated_at <= ?))"

func claimableArgs(now, staleBefore time.Time) []any {
	return []any{enums.ScheduledTransferPending, now, now, enums.ScheduledTransferProcessing, staleBefore}
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, row *models.ScheduledTransfer) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ScheduledTransfer, error) {
	var row models.ScheduledTransfer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ScheduledTransfer{}).
		Where(claimable, claimableArgs(now, staleBefore)...).
		Order("execute_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Claim moves a claimable row to processing and counts the attempt. It
// reports false when another run holds a live claim, the row is not yet due,
// or it is terminal.
func (r *repository) Claim(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ScheduledTransfer{}).
		Where("id = ?", id).
		Where(claimable, claimableArgs(now, staleBefore)...).
		Updates(map[string]any{
			"status":     enums.ScheduledTransferProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Finish(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	updates := map[string]any{
		"status":      outcome.Status,
		"executed_at": outcome.At,
		"updated_at":  outcome.At,
	}
	if outcome.TransactionRef != "" {
		updates["transaction_ref"] = outcome.TransactionRef
	}
	if outcome.FailureReason != "" {
		updates["failure_reason"] = outcome.FailureReason
	}
	return r.db.WithContext(ctx).
		Model(&models.ScheduledTransfer{}).
		Where("id = ? AND status = ?", id, enums.ScheduledTransferProcessing).
		Updates(updates).Error
}

func (r *repository) Reschedule(ctx context.Context, id uuid.UUID, retry Retry) error {
	return r.db.WithContext(ctx).
		Model(&models.ScheduledTransfer{}).
		Where("id = ? AND status = ?", id, enums.ScheduledTransferProcessing).
		Updates(map[string]any{
			"status":          enums.ScheduledTransferPending,
			"failure_reason":  retry.Reason,
			"next_attempt_at": retry.NextAttemptAt,
			"updated_at":      retry.At,
		}).Error
}

func (r *repository) Cancel(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ScheduledTransfer{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, enums.ScheduledTransferPending).
		Updates(map[string]any{
			"status":     enums.ScheduledTransferCanceled,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
