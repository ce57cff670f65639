// Package transfers orchestrates money movement: the limit pre-check, the
// monitoring verdict, the ledger write, the spend commit and the audit trail.
package transfers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/internal/ledger"
	"github.com/angelmondragon/walletcore-backend/internal/limits"
	"github.com/angelmondragon/walletcore-backend/internal/monitoring"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

// Holder-visible transaction states.
const (
	StatusCompleted   = "completed"
	StatusUnderReview = monitoring.PublicStatusUnderReview
	StatusReversed    = "reversed"
	StatusFailed      = "failed"
	StatusPending     = "pending"
)

type accountReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Receipt is what the holder sees after a successful movement.
type Receipt struct {
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	CompletedAt time.Time       `json:"completed_at"`
}

// PublicStatus never carries rule detail.
type PublicStatus struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type Service struct {
	limits     limits.Service
	ledger     ledger.Service
	monitoring monitoring.Service
	accounts   accountReader
	repo       Repository
	auditor    audit.Recorder
	logg       *logger.Logger
	now        func() time.Time

	maxAttempts  int
	retryBackoff time.Duration
	claimLease   time.Duration
}

type ServiceParams struct {
	Limits     limits.Service
	Ledger     ledger.Service
	Monitoring monitoring.Service
	Accounts   accountReader
	Repository Repository
	Auditor    audit.Recorder
	Logger     *logger.Logger
	Now        func() time.Time

	// Scheduled execution retries. Zero values take the package defaults.
	MaxAttempts  int
	RetryBackoff time.Duration
	ClaimLease   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Limits == nil:
		return nil, errors.New("limits service required")
	case params.Ledger == nil:
		return nil, errors.New("ledger service required")
	case params.Monitoring == nil:
		return nil, errors.New("monitoring service required")
	case params.Accounts == nil:
		return nil, errors.New("accounts reader required")
	case params.Repository == nil:
		return nil, errors.New("scheduled transfer repository required")
	case params.Auditor == nil:
		return nil, errors.New("audit recorder required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		limits:     params.Limits,
		ledger:     params.Ledger,
		monitoring: params.Monitoring,
		accounts:   params.Accounts,
		repo:       params.Repository,
		auditor:    params.Auditor,
		logg:       params.Logger,
		now:        now,

		maxAttempts:  orDefault(params.MaxAttempts, defaultMaxAttempts),
		retryBackoff: orDefault(params.RetryBackoff, defaultRetryBackoff),
		claimLease:   orDefault(params.ClaimLease, defaultClaimLease),
	}, nil
}

// Transfer runs the full pipeline for one holder-initiated transfer. Nothing
// is written to the ledger unless the limit check passes and monitoring does
// not block.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*Receipt, error) {
	req.normalize()
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination must differ")
	}
	if err := s.requireOwner(ctx, req.UserID, req.FromAccountID); err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithUserID(ctx, req.UserID.String())
	}

	release, err := s.limits.AcquireUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkLimit(ctx, req.UserID, req.Amount, req.IPAddress); err != nil {
		return nil, err
	}

	reference := ledger.NewReference(s.now())
	if s.logg != nil {
		ctx = s.logg.WithTransactionRef(ctx, reference)
	}
	if err := s.screen(ctx, monitoring.Subject{
		Reference:           reference,
		UserID:              req.UserID,
		AccountID:           req.FromAccountID,
		Type:                req.Type,
		Amount:              req.Amount,
		CounterpartyName:    req.CounterpartyName,
		CounterpartyCountry: req.CounterpartyCountry,
		IPAddress:           req.IPAddress,
	}, req.IPAddress); err != nil {
		return nil, err
	}

	userID := req.UserID
	metadata := map[string]any{}
	if req.Note != "" {
		metadata["note"] = req.Note
	}
	if req.CounterpartyName != "" {
		metadata["counterparty_name"] = req.CounterpartyName
	}
	if req.CounterpartyCountry != "" {
		metadata["counterparty_country"] = req.CounterpartyCountry
	}
	result, err := s.ledger.RecordTransfer(ctx, ledger.TransferInput{
		From:            req.FromAccountID,
		To:              req.ToAccountID,
		Amount:          req.Amount,
		Type:            req.Type,
		Metadata:        metadata,
		InitiatorUserID: &userID,
		Reference:       reference,
	})
	if err != nil {
		s.recordFailure(ctx, userID, reference, req.Amount, req.IPAddress, err)
		return nil, err
	}

	s.commitSpend(ctx, userID, req.Amount, reference)
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionTransferCompleted,
		EntityType: enums.AuditEntityTransaction,
		EntityID:   reference,
		NewValues: map[string]any{
			"amount":       req.Amount.StringFixed(2),
			"from_account": req.FromAccountID.String(),
			"to_account":   req.ToAccountID.String(),
			"type":         string(req.Type),
		},
		IPAddress: req.IPAddress,
	})
	return &Receipt{
		Reference:   result.Reference,
		Status:      StatusCompleted,
		Amount:      req.Amount,
		Balance:     result.FromBalance,
		CompletedAt: result.CompletedAt,
	}, nil
}

// Deposit screens and credits an external inflow. Inflows do not consume
// spend limits.
func (s *Service) Deposit(ctx context.Context, req CashRequest) (*Receipt, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, req.UserID, req.AccountID); err != nil {
		return nil, err
	}

	reference := ledger.NewReference(s.now())
	if s.logg != nil {
		ctx = s.logg.WithTransactionRef(s.logg.WithUserID(ctx, req.UserID.String()), reference)
	}
	if err := s.screen(ctx, monitoring.Subject{
		Reference: reference,
		UserID:    req.UserID,
		AccountID: req.AccountID,
		Type:      enums.TransactionTypeDeposit,
		Amount:    req.Amount,
		IPAddress: req.IPAddress,
	}, req.IPAddress); err != nil {
		return nil, err
	}

	userID := req.UserID
	result, err := s.ledger.Deposit(ctx, ledger.SingleInput{
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		Metadata:        cashMetadata(req.Channel),
		InitiatorUserID: &userID,
		Reference:       reference,
	})
	if err != nil {
		s.recordFailure(ctx, userID, reference, req.Amount, req.IPAddress, err)
		return nil, err
	}
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionDepositCompleted,
		EntityType: enums.AuditEntityTransaction,
		EntityID:   reference,
		NewValues:  map[string]any{"amount": req.Amount.StringFixed(2), "account": req.AccountID.String()},
		IPAddress:  req.IPAddress,
	})
	return &Receipt{Reference: result.Reference, Status: StatusCompleted, Amount: req.Amount, Balance: result.Balance, CompletedAt: result.CompletedAt}, nil
}

// Withdraw runs an external outflow through the same limit and screening
// steps as a transfer.
func (s *Service) Withdraw(ctx context.Context, req CashRequest) (*Receipt, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, req.UserID, req.AccountID); err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithUserID(ctx, req.UserID.String())
	}

	release, err := s.limits.AcquireUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkLimit(ctx, req.UserID, req.Amount, req.IPAddress); err != nil {
		return nil, err
	}

	reference := ledger.NewReference(s.now())
	if s.logg != nil {
		ctx = s.logg.WithTransactionRef(ctx, reference)
	}
	if err := s.screen(ctx, monitoring.Subject{
		Reference: reference,
		UserID:    req.UserID,
		AccountID: req.AccountID,
		Type:      enums.TransactionTypeWithdrawal,
		Amount:    req.Amount,
		IPAddress: req.IPAddress,
	}, req.IPAddress); err != nil {
		return nil, err
	}

	userID := req.UserID
	result, err := s.ledger.Withdraw(ctx, ledger.SingleInput{
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		Metadata:        cashMetadata(req.Channel),
		InitiatorUserID: &userID,
		Reference:       reference,
	})
	if err != nil {
		s.recordFailure(ctx, userID, reference, req.Amount, req.IPAddress, err)
		return nil, err
	}

	s.commitSpend(ctx, userID, req.Amount, reference)
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionWithdrawalCompleted,
		EntityType: enums.AuditEntityTransaction,
		EntityID:   reference,
		NewValues:  map[string]any{"amount": req.Amount.StringFixed(2), "account": req.AccountID.String()},
		IPAddress:  req.IPAddress,
	})
	return &Receipt{Reference: result.Reference, Status: StatusCompleted, Amount: req.Amount, Balance: result.Balance, CompletedAt: result.CompletedAt}, nil
}

// Reverse refunds a completed transfer and records who asked for it.
func (s *Service) Reverse(ctx context.Context, req ReverseRequest) (*ledger.TransferResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	result, err := s.ledger.Reverse(ctx, ledger.ReverseInput{
		Reference:   req.Reference,
		Reason:      req.Reason,
		ActorUserID: req.ActorUserID,
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, audit.Event{
		UserID:     req.ActorUserID,
		Action:     enums.AuditActionTransactionReversed,
		EntityType: enums.AuditEntityTransaction,
		EntityID:   req.Reference,
		OldValues:  map[string]any{"status": string(enums.TransactionStatusCompleted)},
		NewValues: map[string]any{
			"status":           string(enums.TransactionStatusReversed),
			"refund_reference": result.Reference,
			"reason":           req.Reason,
		},
	})
	return result, nil
}

// Status maps a reference to what the holder may see about it.
func (s *Service) Status(ctx context.Context, reference string) (*PublicStatus, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	blocked, err := s.monitoring.IsBlocked(ctx, reference)
	if err != nil {
		return nil, err
	}
	if blocked {
		return &PublicStatus{Reference: reference, Status: StatusUnderReview}, nil
	}
	detail, err := s.ledger.GetTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	status := StatusPending
	switch detail.Transaction.Status {
	case enums.TransactionStatusCompleted:
		status = StatusCompleted
	case enums.TransactionStatusReversed:
		status = StatusReversed
	case enums.TransactionStatusFailed:
		status = StatusFailed
	}
	return &PublicStatus{Reference: reference, Status: status}, nil
}

func (s *Service) requireOwner(ctx context.Context, userID, accountID uuid.UUID) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "account not found")
	}
	if account.UserID == nil || *account.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return nil
}

func (s *Service) checkLimit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, ip string) error {
	check, err := s.limits.CheckLimit(ctx, userID, amount)
	if err != nil {
		return err
	}
	if check.Allowed {
		return nil
	}
	details := map[string]any{
		"reason":            check.Reason,
		"kyc_level":         int(check.KYCLevel),
		"remaining_daily":   check.RemainingDaily.StringFixed(2),
		"remaining_monthly": check.RemainingMonthly.StringFixed(2),
	}
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionLimitExceeded,
		EntityType: enums.AuditEntityUserLimits,
		EntityID:   userID.String(),
		NewValues:  map[string]any{"amount": amount.StringFixed(2), "reason": check.Reason},
		IPAddress:  ip,
	})
	return pkgerrors.New(pkgerrors.CodeLimitExceeded, check.Reason).WithDetails(details)
}

// screen returns a TRANSACTION_BLOCKED error when monitoring holds the
// transaction. The error only exposes the reference and public status.
func (s *Service) screen(ctx context.Context, subject monitoring.Subject, ip string) error {
	subject.OccurredAt = s.now()
	verdict, err := s.monitoring.Evaluate(ctx, subject)
	if err != nil {
		return err
	}
	if !verdict.Blocked {
		return nil
	}
	userID := subject.UserID
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionTransferBlocked,
		EntityType: enums.AuditEntityTransaction,
		EntityID:   subject.Reference,
		NewValues: map[string]any{
			"amount":      subject.Amount.StringFixed(2),
			"type":        string(subject.Type),
			"alert_count": len(verdict.Alerts),
		},
		IPAddress: ip,
	})
	if s.logg != nil {
		s.logg.Warn(ctx, "transaction held for compliance review")
	}
	return pkgerrors.New(pkgerrors.CodeTransactionBlocked, "transaction under review").
		WithDetails(map[string]any{"reference": subject.Reference, "status": StatusUnderReview})
}

// commitSpend runs after the ledger commit, so a failure here cannot undo
// the movement. It is logged and audited for reconciliation.
func (s *Service) commitSpend(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) {
	err := s.limits.CommitSpend(ctx, userID, amount, reference)
	if err == nil {
		return
	}
	if s.logg != nil {
		s.logg.Error(ctx, "commit spend after ledger write", err)
	}
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionIntegrityViolation,
		EntityType: enums.AuditEntityUserLimits,
		EntityID:   userID.String(),
		NewValues:  map[string]any{"reference": reference, "amount": amount.StringFixed(2), "error": string(pkgerrors.CodeOf(err))},
	})
}

func (s *Service) recordFailure(ctx context.Context, userID uuid.UUID, reference string, amount decimal.Decimal, ip string, err error) {
	if s.logg != nil && !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds) {
		s.logg.Error(ctx, "ledger write failed", err)
	}
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionTransferFailed,
		EntityType: enums.AuditEntityTransaction,
		EntityID:   reference,
		NewValues:  map[string]any{"amount": amount.StringFixed(2), "code": string(pkgerrors.CodeOf(err))},
		IPAddress:  ip,
	})
}

func cashMetadata(channel string) map[string]any {
	if channel == "" {
		return nil
	}
	return map[string]any{"channel": channel}
}
