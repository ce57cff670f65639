package limits

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

// Repository persists per-user limit counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserLimits, error)
	Find(ctx context.Context, userID uuid.UUID) (*models.UserLimits, error)
	CreateIfAbsent(ctx context.Context, row *models.UserLimits) error
	Save(ctx context.Context, row *models.UserLimits) error
	// RecordSpend reports false when the reference was already counted.
	RecordSpend(ctx context.Context, spend *models.LimitSpend) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a limits repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserLimits, error) {
	var row models.UserLimits
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Find(ctx context.Context, userID uuid.UUID) (*models.UserLimits, error) {
	var row models.UserLimits
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateIfAbsent inserts row unless the user already has one, so racing
// first checks do not abort the surrounding transaction.
func (r *repository) CreateIfAbsent(ctx context.Context, row *models.UserLimits) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(row).Error
}

func (r *repository) Save(ctx context.Context, row *models.UserLimits) error {
	return r.db.WithContext(ctx).
		Model(&models.UserLimits{}).
		Where("user_id = ?", row.UserID).
		Updates(map[string]any{
			"kyc_level":             row.KYCLevel,
			"per_transaction_limit": row.PerTransactionLimit,
			"daily_limit":           row.DailyLimit,
			"monthly_limit":         row.MonthlyLimit,
			"daily_spent":           row.DailySpent,
			"monthly_spent":         row.MonthlySpent,
			"daily_reset_at":        row.DailyResetAt,
			"monthly_reset_at":      row.MonthlyResetAt,
			"last_transaction_ref":  row.LastTransactionRef,
			"updated_at":            row.UpdatedAt,
		}).Error
}

func (r *repository) RecordSpend(ctx context.Context, spend *models.LimitSpend) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_ref"}}, DoNothing: true}).
		Create(spend)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
