package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Repository reads transaction history for the rules and persists the
// pipeline's alerts, compliance artifacts and blocks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	OutgoingActivity(ctx context.Context, accountID uuid.UUID, since time.Time) (int64, decimal.Decimal, error)
	OutgoingAmounts(ctx context.Context, accountID uuid.UUID, since time.Time) ([]decimal.Decimal, error)
	CashFlowCounts(ctx context.Context, accountID uuid.UUID, since time.Time) (deposits int64, withdrawals int64, err error)
	InsertAlerts(ctx context.Context, alerts []models.MonitoringAlert) error
	InsertReport(ctx context.Context, report *models.ComplianceReport) (bool, error)
	InsertBlock(ctx context.Context, block *models.TransactionBlock) (bool, error)
	FindBlock(ctx context.Context, reference string) (*models.TransactionBlock, error)
	AlertsByReference(ctx context.Context, reference string) ([]models.MonitoringAlert, error)
	CountAlerts(ctx context.Context, start, end time.Time) (int64, error)
	CountReports(ctx context.Context, reportType enums.ComplianceReportType, start, end time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a monitoring repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

var settled = []enums.TransactionStatus{enums.TransactionStatusCompleted, enums.TransactionStatusReversed}

func (r *repository) outgoing(ctx context.Context, accountID uuid.UUID, since time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("source_account_id = ?", accountID).
		Where("created_at >= ?", since.UTC()).
		Where("status IN ?", settled)
}

func (r *repository) OutgoingActivity(ctx context.Context, accountID uuid.UUID, since time.Time) (int64, decimal.Decimal, error) {
	var row struct {
		Count int64           `gorm:"column:count"`
		Total decimal.Decimal `gorm:"column:total"`
	}
	err := r.outgoing(ctx, accountID, since).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Scan(&row).Error
	return row.Count, row.Total, err
}

func (r *repository) OutgoingAmounts(ctx context.Context, accountID uuid.UUID, since time.Time) ([]decimal.Decimal, error) {
	var rows []struct {
		Amount decimal.Decimal `gorm:"column:amount"`
	}
	if err := r.outgoing(ctx, accountID, since).
		Select("amount").
		Order("created_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	amounts := make([]decimal.Decimal, 0, len(rows))
	for _, row := range rows {
		amounts = append(amounts, row.Amount)
	}
	return amounts, nil
}

func (r *repository) CashFlowCounts(ctx context.Context, accountID uuid.UUID, since time.Time) (int64, int64, error) {
	var deposits, withdrawals int64
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Transaction{}).
			Where("created_at >= ?", since.UTC()).
			Where("status IN ?", settled)
	}
	if err := base().
		Where("destination_account_id = ? AND type = ?", accountID, enums.TransactionTypeDeposit).
		Count(&deposits).Error; err != nil {
		return 0, 0, err
	}
	if err := base().
		Where("source_account_id = ? AND type = ?", accountID, enums.TransactionTypeWithdrawal).
		Count(&withdrawals).Error; err != nil {
		return 0, 0, err
	}
	return deposits, withdrawals, nil
}

func (r *repository) InsertAlerts(ctx context.Context, alerts []models.MonitoringAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&alerts).Error
}

// InsertReport stores a CTR or STR once per (type, reference). It reports
// false when the artifact already existed.
func (r *repository) InsertReport(ctx context.Context, report *models.ComplianceReport) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "report_type"}, {Name: "transaction_ref"}},
			DoNothing: true,
		}).
		Create(report)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertBlock(ctx context.Context, block *models.TransactionBlock) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_ref"}},
			DoNothing: true,
		}).
		Create(block)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindBlock(ctx context.Context, reference string) (*models.TransactionBlock, error) {
	var block models.TransactionBlock
	if err := r.db.WithContext(ctx).Where("transaction_ref = ?", reference).First(&block).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *repository) AlertsByReference(ctx context.Context, reference string) ([]models.MonitoringAlert, error) {
	var alerts []models.MonitoringAlert
	err := r.db.WithContext(ctx).
		Where("transaction_ref = ?", reference).
		Order("created_at ASC").
		Find(&alerts).Error
	return alerts, err
}

func (r *repository) CountAlerts(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MonitoringAlert{}).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
		Count(&count).Error
	return count, err
}

func (r *repository) CountReports(ctx context.Context, reportType enums.ComplianceReportType, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ComplianceReport{}).
		Where("report_type = ?", reportType).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
		Count(&count).Error
	return count, err
}
