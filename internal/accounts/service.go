package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// Service manages account lifecycle and customer profiles. Balances are
// owned by the ledger and never written here.
type Service interface {
	Open(ctx context.Context, input OpenInput) (*models.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
	WalletForUser(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	SetStatus(ctx context.Context, input StatusInput) (*models.Account, error)
	SaveProfile(ctx context.Context, input ProfileInput) (*models.CustomerProfile, error)
	Profile(ctx context.Context, userID uuid.UUID) (*models.CustomerProfile, error)
}

// OpenInput describes a new account.
type OpenInput struct {
	UserID *uuid.UUID
	Type   enums.AccountType
}

// StatusInput requests an account status transition.
type StatusInput struct {
	AccountID   uuid.UUID
	Status      enums.AccountStatus
	ActorUserID *uuid.UUID
	Reason      string
}

// ProfileInput carries the screening attributes of an account holder.
type ProfileInput struct {
	UserID   uuid.UUID
	FullName string
	Country  string
	IsPEP    bool
}

type service struct {
	repo     Repository
	auditor  audit.Recorder
	currency string
	now      func() time.Time
}

// ServiceParams wires the accounts service.
type ServiceParams struct {
	Repository Repository
	Auditor    audit.Recorder
	Currency   string
	Now        func() time.Time
}

// NewService validates params and builds the accounts service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, errors.New("accounts repository required")
	}
	if params.Auditor == nil {
		return nil, errors.New("audit recorder required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if len(currency) != 3 {
		return nil, errors.New("three letter currency code required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repository, auditor: params.Auditor, currency: currency, now: now}, nil
}

func (s *service) Open(ctx context.Context, input OpenInput) (*models.Account, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid account type")
	}
	holderOwned := input.Type == enums.AccountTypeCustomer || input.Type.IsBusiness()
	if holderOwned && (input.UserID == nil || *input.UserID == uuid.Nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required for customer and business accounts")
	}
	if !holderOwned && input.UserID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pool accounts cannot belong to a user")
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:        uuid.New(),
		UserID:    input.UserID,
		Type:      input.Type,
		Balance:   zero,
		Currency:  s.currency,
		Status:    enums.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already holds a wallet")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}
	return account, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err, "account not found", "load account")
	}
	return account, nil
}

func (s *service) WalletForUser(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	account, err := s.repo.FindCustomerWallet(ctx, userID)
	if err != nil {
		return nil, mapLookupErr(err, "wallet not found", "load wallet")
	}
	return account, nil
}

func (s *service) SetStatus(ctx context.Context, input StatusInput) (*models.Account, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid account status")
	}
	account, err := s.Get(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Status.CanTransitionTo(input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "account status transition not allowed").
			WithDetails(map[string]any{"from": account.Status, "to": input.Status})
	}

	updated, err := s.repo.UpdateStatus(ctx, account.ID, account.Status, input.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update account status")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "account status changed concurrently")
	}

	previous := account.Status
	account.Status = input.Status
	s.auditor.Record(ctx, audit.Event{
		UserID:     input.ActorUserID,
		Action:     enums.AuditActionAccountStatusChanged,
		EntityType: enums.AuditEntityAccount,
		EntityID:   account.ID.String(),
		OldValues:  map[string]any{"status": previous},
		NewValues:  map[string]any{"status": input.Status, "reason": input.Reason},
	})
	return account, nil
}

func (s *service) SaveProfile(ctx context.Context, input ProfileInput) (*models.CustomerProfile, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name required")
	}
	country := strings.ToUpper(strings.TrimSpace(input.Country))
	if country != "" && len(country) != 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "country must be an ISO 3166 alpha-2 code")
	}

	now := s.now().UTC()
	profile := &models.CustomerProfile{
		UserID:    input.UserID,
		FullName:  name,
		Country:   country,
		IsPEP:     input.IsPEP,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save customer profile")
	}
	return s.Profile(ctx, input.UserID)
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*models.CustomerProfile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		return nil, mapLookupErr(err, "customer profile not found", "load customer profile")
	}
	return profile, nil
}

func mapLookupErr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
