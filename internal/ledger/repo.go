package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/pagination"
)

// Repository persists transactions and their ledger entries. Entries are
// insert-only; no update or delete path exists.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertTransaction(ctx context.Context, txn *models.Transaction) error
	InsertEntries(ctx context.Context, entries []models.LedgerEntry) error
	FindTransaction(ctx context.Context, reference string) (*models.Transaction, error)
	FindTransactionForUpdate(ctx context.Context, reference string) (*models.Transaction, error)
	MarkReversed(ctx context.Context, reference string, at time.Time) (bool, error)
	EntriesByReference(ctx context.Context, reference string) ([]models.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, window pagination.Window) ([]models.LedgerEntry, error)
	DailyTotals(ctx context.Context, start, end time.Time) ([]entryTotal, error)
	CountTransactions(ctx context.Context, start, end time.Time) (int64, error)
}

type entryTotal struct {
	EntryType       enums.EntryType       `gorm:"column:entry_type"`
	TransactionType enums.TransactionType `gorm:"column:transaction_type"`
	Total           decimal.Decimal       `gorm:"column:total"`
	Entries         int64                 `gorm:"column:entries"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) InsertEntries(ctx context.Context, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *repository) FindTransaction(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindTransactionForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		Find(&txn)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &txn, nil
}

func (r *repository) MarkReversed(ctx context.Context, reference string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, enums.TransactionStatusCompleted).
		Updates(map[string]any{
			"status":      enums.TransactionStatusReversed,
			"reversed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) EntriesByReference(ctx context.Context, reference string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("transaction_ref = ?", reference).
		Order("entry_type DESC").
		Find(&entries).Error
	return entries, err
}

// ListEntries pages an account's entries newest first on (created_at, id).
func (r *repository) ListEntries(ctx context.Context, accountID uuid.UUID, window pagination.Window) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if after := window.After; after != nil {
		query = query.Where("(created_at, id) < (?, ?)", after.CreatedAt, after.ID)
	}
	var entries []models.LedgerEntry
	err := query.Order("created_at DESC, id DESC").Limit(window.Fetch).Find(&entries).Error
	return entries, err
}

func (r *repository) DailyTotals(ctx context.Context, start, end time.Time) ([]entryTotal, error) {
	var totals []entryTotal
	err := r.db.WithContext(ctx).
		Table("ledger_entries AS e").
		Select("e.entry_type AS entry_type, t.type AS transaction_type, COALESCE(SUM(e.amount), 0) AS total, COUNT(*) AS entries").
		Joins("JOIN transactions t ON t.reference = e.transaction_ref").
		Where("e.created_at >= ? AND e.created_at < ?", start, end).
		Group("e.entry_type, t.type").
		Scan(&totals).Error
	return totals, err
}

func (r *repository) CountTransactions(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Where("status IN ?", []enums.TransactionStatus{enums.TransactionStatusCompleted, enums.TransactionStatusReversed}).
		Count(&count).Error
	return count, err
}
