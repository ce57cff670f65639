package reports

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

// Repository persists ledger daily reports keyed by local date.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, date string) (*models.LedgerDailyReport, error)
	CreateIfAbsent(ctx context.Context, row *models.LedgerDailyReport) (bool, error)
	MarkExported(ctx context.Context, date string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, date string) (*models.LedgerDailyReport, error) {
	var row models.LedgerDailyReport
	if err := r.db.WithContext(ctx).Where("report_date = ?", date).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateIfAbsent reports false when a row for the date already exists.
func (r *repository) CreateIfAbsent(ctx context.Context, row *models.LedgerDailyReport) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "report_date"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkExported(ctx context.Context, date string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerDailyReport{}).
		Where("report_date = ? AND exported_at IS NULL", date).
		Update("exported_at", at).Error
}
