package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/accounts"
	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/walletcore-backend/pkg/pagination"
)

const (
	maxReferenceAttempts = 3
	amountScale          = 2
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the double-entry ledger engine. It is the only writer of
// account balances.
type Service interface {
	RecordTransfer(ctx context.Context, input TransferInput) (*TransferResult, error)
	Deposit(ctx context.Context, input SingleInput) (*SingleResult, error)
	Withdraw(ctx context.Context, input SingleInput) (*SingleResult, error)
	Reverse(ctx context.Context, input ReverseInput) (*TransferResult, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	GetHistory(ctx context.Context, params HistoryParams) (*HistoryResult, error)
	GetTransaction(ctx context.Context, reference string) (*TransactionDetail, error)
	DailyReport(ctx context.Context, date time.Time) (*DailySummary, error)
}

// TransferInput moves Amount from one account to another.
type TransferInput struct {
	From            uuid.UUID
	To              uuid.UUID
	Amount          decimal.Decimal
	Type            enums.TransactionType
	Metadata        map[string]any
	InitiatorUserID *uuid.UUID
	// Reference is optional. A caller-supplied reference that already exists
	// is rejected as a duplicate submission.
	Reference string
}

// TransferResult reports the committed reference and both balances after it.
type TransferResult struct {
	Reference   string          `json:"reference"`
	FromBalance decimal.Decimal `json:"from_balance"`
	ToBalance   decimal.Decimal `json:"to_balance"`
	CompletedAt time.Time       `json:"completed_at"`
}

// SingleInput credits or debits one account against the outside world.
type SingleInput struct {
	AccountID       uuid.UUID
	Amount          decimal.Decimal
	Metadata        map[string]any
	InitiatorUserID *uuid.UUID
	Reference       string
}

// SingleResult reports a committed deposit or withdrawal.
type SingleResult struct {
	Reference   string          `json:"reference"`
	Balance     decimal.Decimal `json:"balance"`
	CompletedAt time.Time       `json:"completed_at"`
}

// ReverseInput asks for a compensating refund of a completed transfer.
type ReverseInput struct {
	Reference   string
	Reason      string
	ActorUserID *uuid.UUID
}

// HistoryParams pages an account's entries newest first.
type HistoryParams struct {
	AccountID uuid.UUID
	Limit     int
	Cursor    string
}

// HistoryResult is one page of entries plus the cursor of the next page.
type HistoryResult struct {
	Items  []models.LedgerEntry `json:"items"`
	Cursor string               `json:"cursor"`
}

// TransactionDetail is a transaction with its entries.
type TransactionDetail struct {
	Transaction models.Transaction   `json:"transaction"`
	Entries     []models.LedgerEntry `json:"entries"`
}

type service struct {
	tx            txRunner
	repo          Repository
	accounts      accounts.Repository
	locker        locks.Locker
	outbox        outboxPublisher
	metrics       *metrics.LedgerMetrics
	logg          *logger.Logger
	currency      string
	location      *time.Location
	dbLockTimeout time.Duration
	now           func() time.Time
}

// ServiceParams wires the ledger engine.
type ServiceParams struct {
	TxRunner      txRunner
	Repository    Repository
	Accounts      accounts.Repository
	Locker        locks.Locker
	Outbox        outboxPublisher
	Metrics       *metrics.LedgerMetrics
	Logger        *logger.Logger
	Currency      string
	Location      *time.Location
	DBLockTimeout time.Duration
	Now           func() time.Time
}

// NewService validates params and builds the ledger engine.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Repository == nil {
		return nil, errors.New("ledger repository required")
	}
	if params.Accounts == nil {
		return nil, errors.New("accounts repository required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if len(currency) != 3 {
		return nil, errors.New("three letter currency code required")
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
		tx:            params.TxRunner,
		repo:          params.Repository,
		accounts:      params.Accounts,
		locker:        params.Locker,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          params.Logger,
		currency:      currency,
		location:      loc,
		dbLockTimeout: params.DBLockTimeout,
		now:           now,
	}, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.Round(amountScale).Equal(amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	return nil
}

func (s *service) RecordTransfer(ctx context.Context, input TransferInput) (result *TransferResult, err error) {
	defer func() { s.observe("transfer", err) }()

	if input.From == uuid.Nil || input.To == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination accounts required")
	}
	if input.From == input.To {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination must differ")
	}
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	if input.Type == "" {
		input.Type = enums.TransactionTypeTransfer
	}
	if !input.Type.IsTwoSided() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "transaction type %q is not a two-sided movement", input.Type)
	}
	metadata, err := marshalMetadata(input.Metadata)
	if err != nil {
		return nil, err
	}

	release, err := s.lockAccounts(ctx, input.From, input.To)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.withReference(input.Reference, func(reference string) error {
		var writeErr error
		result, writeErr = s.writeTransfer(ctx, reference, input, metadata)
		return writeErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) writeTransfer(ctx context.Context, reference string, input TransferInput, metadata json.RawMessage) (*TransferResult, error) {
	var result *TransferResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.setLockTimeout(tx); err != nil {
			return err
		}
		locked, err := s.lockRows(ctx, tx, input.From, input.To)
		if err != nil {
			return err
		}
		from, to := locked[input.From], locked[input.To]
		if err := s.requireUsable(from); err != nil {
			return err
		}
		if err := s.requireUsable(to); err != nil {
			return err
		}
		if from.Balance.LessThan(input.Amount) {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds").
				WithDetails(map[string]any{"account_id": from.ID})
		}

		now := s.now().UTC()
		// Written completed: the row and its entries commit together, so
		// pending is never observable.
		txn := &models.Transaction{
			ID:                   uuid.New(),
			Reference:            reference,
			Type:                 input.Type,
			Status:               enums.TransactionStatusCompleted,
			Amount:               input.Amount,
			Currency:             s.currency,
			InitiatorUserID:      input.InitiatorUserID,
			SourceAccountID:      &from.ID,
			DestinationAccountID: &to.ID,
			Metadata:             metadata,
			CreatedAt:            now,
			CompletedAt:          &now,
		}
		fromAfter := from.Balance.Sub(input.Amount)
		toAfter := to.Balance.Add(input.Amount)
		if err := s.post(ctx, tx, txn, []posting{
			{account: from, entryType: enums.EntryTypeDebit, balanceAfter: fromAfter, counterparty: to.ID},
			{account: to, entryType: enums.EntryTypeCredit, balanceAfter: toAfter, counterparty: from.ID},
		}); err != nil {
			return err
		}
		result = &TransferResult{Reference: reference, FromBalance: fromAfter, ToBalance: toAfter, CompletedAt: now}
		return nil
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return result, nil
}

func (s *service) Deposit(ctx context.Context, input SingleInput) (*SingleResult, error) {
	return s.single(ctx, enums.TransactionTypeDeposit, enums.EntryTypeCredit, input)
}

func (s *service) Withdraw(ctx context.Context, input SingleInput) (*SingleResult, error) {
	return s.single(ctx, enums.TransactionTypeWithdrawal, enums.EntryTypeDebit, input)
}

func (s *service) single(ctx context.Context, txType enums.TransactionType, side enums.EntryType, input SingleInput) (result *SingleResult, err error) {
	defer func() { s.observe(string(txType), err) }()

	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	metadata, err := marshalMetadata(input.Metadata)
	if err != nil {
		return nil, err
	}

	release, err := s.lockAccounts(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.withReference(input.Reference, func(reference string) error {
		return mapWriteErr(s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.setLockTimeout(tx); err != nil {
				return err
			}
			locked, err := s.lockRows(ctx, tx, input.AccountID)
			if err != nil {
				return err
			}
			account := locked[input.AccountID]
			if err := s.requireUsable(account); err != nil {
				return err
			}

			after := account.Balance.Add(input.Amount)
			if side == enums.EntryTypeDebit {
				if account.Balance.LessThan(input.Amount) {
					return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds").
						WithDetails(map[string]any{"account_id": account.ID})
				}
				after = account.Balance.Sub(input.Amount)
			}

			now := s.now().UTC()
			txn := &models.Transaction{
				ID:              uuid.New(),
				Reference:       reference,
				Type:            txType,
				Status:          enums.TransactionStatusCompleted,
				Amount:          input.Amount,
				Currency:        s.currency,
				InitiatorUserID: input.InitiatorUserID,
				Metadata:        metadata,
				CreatedAt:       now,
				CompletedAt:     &now,
			}
			if side == enums.EntryTypeDebit {
				txn.SourceAccountID = &account.ID
			} else {
				txn.DestinationAccountID = &account.ID
			}
			if err := s.post(ctx, tx, txn, []posting{{account: account, entryType: side, balanceAfter: after}}); err != nil {
				return err
			}
			result = &SingleResult{Reference: reference, Balance: after, CompletedAt: now}
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reverse books a refund that mirrors a completed transfer and marks the
// original reversed. A transfer can be reversed once.
func (s *service) Reverse(ctx context.Context, input ReverseInput) (result *TransferResult, err error) {
	defer func() { s.observe("reverse", err) }()

	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	original, err := s.repo.FindTransaction(ctx, reference)
	if err != nil {
		return nil, mapLookupErr(err, "transaction not found", "load transaction")
	}
	if err := reversible(original); err != nil {
		return nil, err
	}
	from, to := *original.DestinationAccountID, *original.SourceAccountID

	release, err := s.lockAccounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	defer release()

	metadata, err := marshalMetadata(map[string]any{"reversal_of": reference, "reason": input.Reason})
	if err != nil {
		return nil, err
	}

	err = s.withReference("", func(refundRef string) error {
		return mapWriteErr(s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.setLockTimeout(tx); err != nil {
				return err
			}
			repo := s.repo.WithTx(tx)
			current, err := repo.FindTransactionForUpdate(ctx, reference)
			if err != nil {
				return err
			}
			if err := reversible(current); err != nil {
				return err
			}
			locked, err := s.lockRows(ctx, tx, from, to)
			if err != nil {
				return err
			}
			payer, payee := locked[from], locked[to]
			for _, account := range []*models.Account{payer, payee} {
				if account.Status == enums.AccountStatusClosed {
					return pkgerrors.New(pkgerrors.CodeAccountNotActive, "account is closed").
						WithDetails(map[string]any{"account_id": account.ID})
				}
			}
			if payer.Balance.LessThan(current.Amount) {
				return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds to reverse").
					WithDetails(map[string]any{"account_id": payer.ID})
			}

			now := s.now().UTC()
			reversed := reference
			refund := &models.Transaction{
				ID:                   uuid.New(),
				Reference:            refundRef,
				Type:                 enums.TransactionTypeRefund,
				Status:               enums.TransactionStatusCompleted,
				Amount:               current.Amount,
				Currency:             current.Currency,
				InitiatorUserID:      input.ActorUserID,
				SourceAccountID:      &payer.ID,
				DestinationAccountID: &payee.ID,
				ReversalOf:           &reversed,
				Metadata:             metadata,
				CreatedAt:            now,
				CompletedAt:          &now,
			}
			payerAfter := payer.Balance.Sub(current.Amount)
			payeeAfter := payee.Balance.Add(current.Amount)
			if err := s.post(ctx, tx, refund, []posting{
				{account: payer, entryType: enums.EntryTypeDebit, balanceAfter: payerAfter, counterparty: payee.ID},
				{account: payee, entryType: enums.EntryTypeCredit, balanceAfter: payeeAfter, counterparty: payer.ID},
			}); err != nil {
				return err
			}
			marked, err := repo.MarkReversed(ctx, reference, now)
			if err != nil {
				return err
			}
			if !marked {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already reversed")
			}
			result = &TransferResult{Reference: refundRef, FromBalance: payerAfter, ToBalance: payeeAfter, CompletedAt: now}
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func reversible(txn *models.Transaction) error {
	if !txn.Type.IsTwoSided() || txn.Type == enums.TransactionTypeRefund || txn.SourceAccountID == nil || txn.DestinationAccountID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only transfers can be reversed")
	}
	switch txn.Status {
	case enums.TransactionStatusCompleted:
		return nil
	case enums.TransactionStatusReversed:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already reversed")
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not completed")
	}
}

func (s *service) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	if accountID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, mapLookupErr(err, "account not found", "load account")
	}
	return account.Balance, nil
}

func (s *service) GetHistory(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	if params.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	window, err := pagination.NewWindow(params.Limit, params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListEntries(ctx, params.AccountID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	rows, next := pagination.Trim(window, rows, func(e models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	cursor := pagination.Encode(next)
	return &HistoryResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) GetTransaction(ctx context.Context, reference string) (*TransactionDetail, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	txn, err := s.repo.FindTransaction(ctx, reference)
	if err != nil {
		return nil, mapLookupErr(err, "transaction not found", "load transaction")
	}
	entries, err := s.repo.EntriesByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entries")
	}
	return &TransactionDetail{Transaction: *txn, Entries: entries}, nil
}

// lockAccounts takes the application-level account locks in ascending order.
func (s *service) lockAccounts(ctx context.Context, ids ...uuid.UUID) (locks.Release, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	started := time.Now()
	release, err := s.locker.Acquire(ctx, locks.ScopeAccount, keys...)
	s.metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		return nil, err
	}
	return release, nil
}

// lockRows takes row locks in ascending id order inside tx.
func (s *service) lockRows(ctx context.Context, tx *gorm.DB, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	return s.accounts.WithTx(tx).LockByIDs(ctx, sorted)
}

func (s *service) setLockTimeout(tx *gorm.DB) error {
	if s.dbLockTimeout <= 0 || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.dbLockTimeout.Milliseconds())).Error
}

func (s *service) requireUsable(account *models.Account) error {
	if !account.IsActive() {
		return pkgerrors.New(pkgerrors.CodeAccountNotActive, "account is not active").
			WithDetails(map[string]any{"account_id": account.ID, "status": account.Status})
	}
	if account.Currency != s.currency {
		return pkgerrors.New(pkgerrors.CodeValidation, "account currency mismatch").
			WithDetails(map[string]any{"account_id": account.ID})
	}
	return nil
}

type posting struct {
	account      *models.Account
	entryType    enums.EntryType
	balanceAfter decimal.Decimal
	counterparty uuid.UUID
}

// post writes the transaction row, its entries and the balance updates, then
// queues the completion event on the same transaction.
func (s *service) post(ctx context.Context, tx *gorm.DB, txn *models.Transaction, postings []posting) error {
	repo := s.repo.WithTx(tx)
	accountsRepo := s.accounts.WithTx(tx)

	if err := repo.InsertTransaction(ctx, txn); err != nil {
		return err
	}
	entries := make([]models.LedgerEntry, 0, len(postings))
	for _, p := range postings {
		entryMeta := map[string]any{"transaction_type": txn.Type}
		if p.counterparty != uuid.Nil {
			entryMeta["counterparty_account_id"] = p.counterparty
		}
		raw, err := json.Marshal(entryMeta)
		if err != nil {
			return err
		}
		entries = append(entries, models.LedgerEntry{
			ID:             uuid.New(),
			TransactionRef: txn.Reference,
			AccountID:      p.account.ID,
			EntryType:      p.entryType,
			Amount:         txn.Amount,
			BalanceAfter:   p.balanceAfter,
			Currency:       txn.Currency,
			Metadata:       raw,
			CreatedAt:      txn.CreatedAt,
		})
	}
	if err := repo.InsertEntries(ctx, entries); err != nil {
		return err
	}
	for _, p := range postings {
		if err := accountsRepo.UpdateBalance(ctx, p.account.ID, p.balanceAfter, txn.CreatedAt); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionCompleted,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Initiator:     outbox.UserInitiator(txn.InitiatorUserID),
		OccurredAt:    txn.CreatedAt,
		Data: payloads.TransactionCompletedEvent{
			Reference:            txn.Reference,
			Type:                 txn.Type,
			Amount:               txn.Amount,
			Currency:             txn.Currency,
			SourceAccountID:      txn.SourceAccountID,
			DestinationAccountID: txn.DestinationAccountID,
			CompletedAt:          txn.CreatedAt,
		},
	})
}

// withReference runs write with a reference, regenerating a colliding
// generated reference. A caller-supplied reference that collides is a duplicate.
func (s *service) withReference(supplied string, write func(reference string) error) error {
	supplied = strings.TrimSpace(supplied)
	reference := supplied
	if reference == "" {
		reference = NewReference(s.now())
	}
	for attempt := 1; ; attempt++ {
		err := write(reference)
		if err == nil || !isReferenceCollision(err) {
			return err
		}
		if supplied != "" {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "duplicate transaction reference")
		}
		if attempt >= maxReferenceAttempts {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "could not allocate a unique reference")
		}
		reference = NewReference(s.now())
	}
}

func isReferenceCollision(err error) bool {
	return db.IsUniqueViolation(err, "ux_transactions_reference") || db.IsUniqueViolation(err, "transactions.reference")
}

func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case isReferenceCollision(err):
		return err
	case db.IsUniqueViolation(err, "reversal_of"):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "transaction already reversed")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "account not found")
	case db.IsLockTimeout(err):
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "account is busy")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger write failed")
	}
}

func mapLookupErr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func marshalMetadata(metadata map[string]any) (json.RawMessage, error) {
	if len(metadata) == 0 {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "metadata must be JSON encodable")
	}
	return raw, nil
}

func (s *service) observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(pkgerrors.CodeOf(err)))
	}
	s.metrics.IncOperation(operation, outcome)
}
