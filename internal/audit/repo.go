package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

// Repository appends and archives audit records. There is no update path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.AuditRecord) error
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditRecord, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.AuditRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditRecord, error) {
	var rows []models.AuditRecord
	err := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.AuditRecord{})
	return res.RowsAffected, res.Error
}

func (r *repository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditRecord, error) {
	var rows []models.AuditRecord
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
