package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Repository persists accounts and customer profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindCustomerWallet(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, activityAt time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.AccountStatus) (bool, error)
	FindProfile(ctx context.Context, userID uuid.UUID) (*models.CustomerProfile, error)
	UpsertProfile(ctx context.Context, profile *models.CustomerProfile) error
	UpdateRiskFlags(ctx context.Context, userID uuid.UUID, flags []string, verifiedAt time.Time) error
}

var zero = decimal.Zero

type repository struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindCustomerWallet(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type IN ?", userID, []enums.AccountType{enums.AccountTypeCustomer, enums.AccountTypeBusiness}).
		Order("created_at ASC").
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// LockByIDs takes row locks one id at a time in the order given. Callers pass
// ids already sorted so concurrent writers queue instead of deadlocking.
func (r *repository) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	out := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		var account models.Account
		res := r.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Find(&account)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
		out[id] = &account
	}
	return out, nil
}

func (r *repository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, activityAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":          balance,
			"last_activity_at": activityAt,
			"updated_at":       activityAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateStatus moves an account from one status to another. It reports false
// when the row was no longer in the expected status.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.AccountStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindProfile(ctx context.Context, userID uuid.UUID) (*models.CustomerProfile, error) {
	var profile models.CustomerProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) UpsertProfile(ctx context.Context, profile *models.CustomerProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "country", "is_pep", "updated_at"}),
		}).
		Create(profile).Error
}

func (r *repository) UpdateRiskFlags(ctx context.Context, userID uuid.UUID, flags []string, verifiedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.CustomerProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"risk_flags":  pq.StringArray(flags),
			"verified_at": verifiedAt,
			"updated_at":  verifiedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
