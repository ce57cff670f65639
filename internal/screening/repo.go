package screening

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

// Repository reads the locally seeded sanctions and proscribed-persons list.
type Repository interface {
	ListEntries(ctx context.Context) ([]models.SanctionsEntry, error)
	Create(ctx context.Context, entry *models.SanctionsEntry) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a sanctions list repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListEntries(ctx context.Context) ([]models.SanctionsEntry, error) {
	var entries []models.SanctionsEntry
	err := r.db.WithContext(ctx).Order("full_name ASC").Find(&entries).Error
	return entries, err
}

func (r *repository) Create(ctx context.Context, entry *models.SanctionsEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
