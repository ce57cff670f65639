package limits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

const (
	ReasonKYCRequired    = "KYC verification required"
	ReasonPerTransaction = "amount exceeds per-transaction limit"
	ReasonDaily          = "amount exceeds remaining daily limit"
	ReasonMonthly        = "amount exceeds remaining monthly limit"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service enforces KYC tier ceilings and tracks spend per user.
type Service interface {
	CheckLimit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*CheckResult, error)
	CommitSpend(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error
	SetKYCLevel(ctx context.Context, userID uuid.UUID, level enums.KYCLevel) (enums.KYCLevel, error)
	AcquireUser(ctx context.Context, userID uuid.UUID) (locks.Release, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.UserLimits, error)
}

// CheckResult is the outcome of a limit pre-check.
type CheckResult struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason,omitempty"`
	KYCLevel         enums.KYCLevel  `json:"kyc_level"`
	RemainingDaily   decimal.Decimal `json:"remaining_daily"`
	RemainingMonthly decimal.Decimal `json:"remaining_monthly"`
}

type service struct {
	tx       txRunner
	repo     Repository
	locker   locks.Locker
	location *time.Location
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams wires the limit tracker.
type ServiceParams struct {
	TxRunner   txRunner
	Repository Repository
	Locker     locks.Locker
	Location   *time.Location
	Logger     *logger.Logger
	Now        func() time.Time
}

// NewService validates params and builds the limit tracker.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Repository == nil {
		return nil, errors.New("limits repository required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       params.TxRunner,
		repo:     params.Repository,
		locker:   params.Locker,
		location: loc,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// CheckLimit compares amount against the user's ceilings in the order
// tier 0, per transaction, daily, monthly. The row is created at tier 0 on
// first use and any rolled-over window is persisted before comparing.
func (s *service) CheckLimit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*CheckResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var result *CheckResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.loadForUpdate(ctx, s.repo.WithTx(tx), userID)
		if err != nil {
			return err
		}
		result = evaluate(row, amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func evaluate(row *models.UserLimits, amount decimal.Decimal) *CheckResult {
	result := &CheckResult{
		Allowed:          true,
		KYCLevel:         row.KYCLevel,
		RemainingDaily:   nonNegative(row.DailyLimit.Sub(row.DailySpent)),
		RemainingMonthly: nonNegative(row.MonthlyLimit.Sub(row.MonthlySpent)),
	}
	switch {
	case row.KYCLevel == enums.KYCLevelUnverified:
		result.Reason = ReasonKYCRequired
	case amount.GreaterThan(row.PerTransactionLimit):
		result.Reason = ReasonPerTransaction
	case row.DailySpent.Add(amount).GreaterThan(row.DailyLimit):
		result.Reason = ReasonDaily
	case row.MonthlySpent.Add(amount).GreaterThan(row.MonthlyLimit):
		result.Reason = ReasonMonthly
	}
	if result.Reason != "" {
		result.Allowed = false
	}
	return result
}

// CommitSpend adds amount to the user's counters once the ledger write has
// committed. Any reference already counted, not just the latest, is a no-op.
func (s *service) CommitSpend(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := s.loadForUpdate(ctx, repo, userID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		fresh, err := repo.RecordSpend(ctx, &models.LimitSpend{
			TransactionRef: reference,
			UserID:         userID,
			Amount:         amount,
			CreatedAt:      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record spend")
		}
		if !fresh {
			return nil
		}
		row.DailySpent = row.DailySpent.Add(amount)
		row.MonthlySpent = row.MonthlySpent.Add(amount)
		ref := reference
		row.LastTransactionRef = &ref
		row.UpdatedAt = now
		if err := repo.Save(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit spend")
		}
		return nil
	})
}

// SetKYCLevel applies the tier table for level and returns the previous level.
func (s *service) SetKYCLevel(ctx context.Context, userID uuid.UUID, level enums.KYCLevel) (enums.KYCLevel, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !level.IsValid() {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid kyc level %d", level)
	}

	var previous enums.KYCLevel
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := s.loadForUpdate(ctx, repo, userID)
		if err != nil {
			return err
		}
		previous = row.KYCLevel
		tier := TierFor(level)
		row.KYCLevel = level
		row.PerTransactionLimit = tier.PerTransaction
		row.DailyLimit = tier.Daily
		row.MonthlyLimit = tier.Monthly
		row.UpdatedAt = s.now().UTC()
		if err := repo.Save(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update kyc level")
		}
		return nil
	})
	return previous, err
}

// AcquireUser serializes the check, ledger write and spend commit of one user.
func (s *service) AcquireUser(ctx context.Context, userID uuid.UUID) (locks.Release, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.locker.Acquire(ctx, locks.ScopeUser, userID.String())
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.UserLimits, error) {
	row, err := s.repo.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "limits not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load limits")
	}
	return row, nil
}

// loadForUpdate locks the user's row, creating it at tier 0 when missing,
// and persists any window reset.
func (s *service) loadForUpdate(ctx context.Context, repo Repository, userID uuid.UUID) (*models.UserLimits, error) {
	now := s.now().UTC()
	row, err := repo.FindForUpdate(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := repo.CreateIfAbsent(ctx, newLimitsRow(userID, now, s.location)); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create limits")
		}
		row, err = repo.FindForUpdate(ctx, userID)
	}
	if err != nil {
		if db.IsLockTimeout(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "limits row busy")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load limits")
	}

	if applyReset(row, now, s.location) {
		row.UpdatedAt = now
		if err := repo.Save(ctx, row); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset limits")
		}
	}
	return row, nil
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
