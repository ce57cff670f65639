package transfers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/accounts"
	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/internal/ledger"
	"github.com/angelmondragon/walletcore-backend/internal/limits"
	"github.com/angelmondragon/walletcore-backend/internal/monitoring"
	"github.com/angelmondragon/walletcore-backend/internal/notifications"
	"github.com/angelmondragon/walletcore-backend/internal/screening"
	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type auditLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *auditLog) Record(_ context.Context, event audit.Event) uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return uuid.New()
}

func (a *auditLog) actions() []enums.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]enums.AuditAction, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	conn       *gorm.DB
	svc        *Service
	ledger     ledger.Service
	limits     limits.Service
	accounts   accounts.Repository
	monitoring monitoring.Repository
	sanctions  screening.Repository
	audit      *auditLog
	clock      *clock
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func thresholds() monitoring.Thresholds {
	return monitoring.Thresholds{
		PersonalLargeTransaction: dec(500_000),
		BusinessLargeTransaction: dec(5_000_000),
		CTR:                      dec(2_000_000),
		VelocityHourlyCount:      10,
		VelocityDailyCount:       50,
		VelocityDailyAmount:      dec(5_000_000),
		StructuringWindow:        24 * time.Hour,
		StructuringMinPrior:      3,
		StructuringLowerBound:    dec(450_000),
		RapidMovementFloor:       2,
		RoundAmountUnit:          dec(10_000),
		RoundAmountFloor:         dec(50_000),
		RoundAmountMinCount:      3,
		RoundAmountWindow:        7 * 24 * time.Hour,
		UnusualHourStart:         0,
		UnusualHourEnd:           5,
		DormancyThreshold:        180 * 24 * time.Hour,
		DormantAmountFloor:       dec(100_000),
		SanctionsMatchScore:      0.85,
		PEPAmountFloor:           dec(1_000_000),
	}.WithHighRiskCountries("KP", "IR")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLockWait(t, 5*time.Second)
}

func newFixtureWithLockWait(t *testing.T, lockWait time.Duration) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)}
	tx := db.Wrap(conn)
	locker := locks.NewMemoryLocker(lockWait)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	log := &auditLog{}

	accountRepo := accounts.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		TxRunner:   tx,
		Repository: ledger.NewRepository(conn),
		Accounts:   accountRepo,
		Locker:     locker,
		Outbox:     publisher,
		Currency:   "PKR",
		Location:   loc,
		Now:        c.now,
	})
	require.NoError(t, err)

	limitSvc, err := limits.NewService(limits.ServiceParams{
		TxRunner:   tx,
		Repository: limits.NewRepository(conn),
		Locker:     locker,
		Location:   loc,
		Now:        c.now,
	})
	require.NoError(t, err)

	sanctions := screening.NewRepository(conn)
	screener, err := screening.NewScreener(screening.ScreenerParams{Local: screening.NewListMatcher(sanctions, 0.85, 0)})
	require.NoError(t, err)
	notifier, err := notifications.NewService(tx, publisher, nil)
	require.NoError(t, err)
	monitoringRepo := monitoring.NewRepository(conn)
	monitoringSvc, err := monitoring.NewService(monitoring.ServiceParams{
		TxRunner:   tx,
		Repository: monitoringRepo,
		Accounts:   accountRepo,
		Screener:   screener,
		Outbox:     publisher,
		Notifier:   notifier,
		Auditor:    log,
		Thresholds: thresholds(),
		Location:   loc,
		Currency:   "PKR",
		Now:        c.now,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Limits:     limitSvc,
		Ledger:     ledgerSvc,
		Monitoring: monitoringSvc,
		Accounts:   accountRepo,
		Repository: NewRepository(conn),
		Auditor:    log,
		Now:        c.now,
	})
	require.NoError(t, err)

	return &fixture{
		conn:       conn,
		svc:        svc,
		ledger:     ledgerSvc,
		limits:     limitSvc,
		accounts:   accountRepo,
		monitoring: monitoringRepo,
		sanctions:  sanctions,
		audit:      log,
		clock:      c,
	}
}

// holder opens a verified customer wallet funded through the ledger.
func (f *fixture) holder(t *testing.T, balance int64, level enums.KYCLevel) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	user := uuid.New()
	account := &models.Account{
		ID:       uuid.New(),
		UserID:   &user,
		Type:     enums.AccountTypeCustomer,
		Currency: "PKR",
		Status:   enums.AccountStatusActive,
		Balance:  decimal.Zero,
	}
	require.NoError(t, f.accounts.Create(ctx, account))
	if balance > 0 {
		_, err := f.ledger.Deposit(ctx, ledger.SingleInput{AccountID: account.ID, Amount: dec(balance)})
		require.NoError(t, err)
	}
	_, err := f.limits.SetKYCLevel(ctx, user, level)
	require.NoError(t, err)
	return user, account.ID
}

func (f *fixture) balance(t *testing.T, account uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), account)
	require.NoError(t, err)
	return b
}

func TestEndToEndTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userA, accountA := f.holder(t, 10_000, enums.KYCLevelBasic)
	_, accountB := f.holder(t, 500, enums.KYCLevelBasic)

	receipt, err := f.svc.Transfer(ctx, TransferRequest{
		UserID:        userA,
		FromAccountID: accountA,
		ToAccountID:   accountB,
		Amount:        dec(3_000),
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, receipt.Status)
	require.True(t, receipt.Balance.Equal(dec(7_000)))

	require.True(t, f.balance(t, accountA).Equal(dec(7_000)))
	require.True(t, f.balance(t, accountB).Equal(dec(3_500)))

	detail, err := f.ledger.GetTransaction(ctx, receipt.Reference)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionStatusCompleted, detail.Transaction.Status)
	require.Len(t, detail.Entries, 2)
	for _, entry := range detail.Entries {
		require.Equal(t, receipt.Reference, entry.TransactionRef)
	}

	alerts, err := f.monitoring.AlertsByReference(ctx, receipt.Reference)
	require.NoError(t, err)
	require.Empty(t, alerts)

	row, err := f.limits.Get(ctx, userA)
	require.NoError(t, err)
	require.True(t, row.DailySpent.Equal(dec(3_000)))
	require.NotNil(t, row.LastTransactionRef)
	require.Equal(t, receipt.Reference, *row.LastTransactionRef)

	status, err := f.svc.Status(ctx, receipt.Reference)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status.Status)
	require.Contains(t, f.audit.actions(), enums.AuditActionTransferCompleted)
}

func TestTransferRejectedByLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, from := f.holder(t, 100_000, enums.KYCLevelUnverified)
	_, to := f.holder(t, 0, enums.KYCLevelBasic)

	_, err := f.svc.Transfer(ctx, TransferRequest{UserID: user, FromAccountID: from, ToAccountID: to, Amount: dec(1_000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLimitExceeded))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, limits.ReasonKYCRequired, details["reason"])

	require.True(t, f.balance(t, from).Equal(dec(100_000)))
	require.Equal(t, []enums.AuditAction{enums.AuditActionLimitExceeded}, f.audit.actions())

	var count int64
	require.NoError(t, f.conn.Model(&models.Transaction{}).Where("type = ?", enums.TransactionTypeTransfer).Count(&count).Error)
	require.Zero(t, count)
}

func TestTransferBlockedBySanctions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sanctions.Create(ctx, &models.SanctionsEntry{
		ID:         uuid.New(),
		FullName:   "Viktor Bout",
		Aliases:    pq.StringArray{"Victor Butt"},
		SourceList: "UN-1267",
	}))
	user, from := f.holder(t, 20_000, enums.KYCLevelBasic)
	_, to := f.holder(t, 0, enums.KYCLevelBasic)

	_, err := f.svc.Transfer(ctx, TransferRequest{
		UserID:           user,
		FromAccountID:    from,
		ToAccountID:      to,
		Amount:           dec(5_000),
		CounterpartyName: "Victor Bout",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransactionBlocked))
	require.Equal(t, "transaction under review", pkgerrors.MetadataFor(pkgerrors.CodeTransactionBlocked).PublicMessage)
	details := pkgerrors.As(err).Details().(map[string]any)
	reference := details["reference"].(string)
	require.NotEmpty(t, reference)

	require.True(t, f.balance(t, from).Equal(dec(20_000)))
	require.True(t, f.balance(t, to).IsZero())

	row, err := f.limits.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, row.DailySpent.IsZero())

	alerts, err := f.monitoring.AlertsByReference(ctx, reference)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, enums.AlertTypeSanctionsHit, alerts[0].Type)

	status, err := f.svc.Status(ctx, reference)
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, status.Status)
	require.Contains(t, f.audit.actions(), enums.AuditActionTransferBlocked)
}

func TestTransferInsufficientFundsIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, from := f.holder(t, 1_000, enums.KYCLevelBasic)
	_, to := f.holder(t, 0, enums.KYCLevelBasic)

	_, err := f.svc.Transfer(ctx, TransferRequest{UserID: user, FromAccountID: from, ToAccountID: to, Amount: dec(2_000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	require.Contains(t, f.audit.actions(), enums.AuditActionTransferFailed)

	row, err := f.limits.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, row.DailySpent.IsZero())
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	user, from := f.holder(t, 1_000, enums.KYCLevelBasic)
	_, to := f.holder(t, 0, enums.KYCLevelBasic)
	base := TransferRequest{UserID: user, FromAccountID: from, ToAccountID: to, Amount: dec(10)}

	cases := map[string]func(r *TransferRequest){
		"zero amount":     func(r *TransferRequest) { r.Amount = decimal.Zero },
		"negative amount": func(r *TransferRequest) { r.Amount = dec(-5) },
		"three decimals":  func(r *TransferRequest) { r.Amount = decimal.RequireFromString("1.005") },
		"same account":    func(r *TransferRequest) { r.ToAccountID = from },
		"missing user":    func(r *TransferRequest) { r.UserID = uuid.Nil },
		"bad country":     func(r *TransferRequest) { r.CounterpartyCountry = "ZZZ" },
		"bad ip":          func(r *TransferRequest) { r.IPAddress = "not-an-ip" },
		"bad type":        func(r *TransferRequest) { r.Type = enums.TransactionTypeDeposit },
	}
	for name, mutate := range cases {
		req := base
		mutate(&req)
		_, err := f.svc.Transfer(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	stranger := base
	stranger.UserID = uuid.New()
	_, err := f.svc.Transfer(context.Background(), stranger)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, account := f.holder(t, 0, enums.KYCLevelBasic)

	receipt, err := f.svc.Deposit(ctx, CashRequest{UserID: user, AccountID: account, Amount: dec(40_000), Channel: "bank"})
	require.NoError(t, err)
	require.True(t, receipt.Balance.Equal(dec(40_000)))

	receipt, err = f.svc.Withdraw(ctx, CashRequest{UserID: user, AccountID: account, Amount: dec(15_000)})
	require.NoError(t, err)
	require.True(t, receipt.Balance.Equal(dec(25_000)))

	row, err := f.limits.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, row.DailySpent.Equal(dec(15_000)), "only outflows count against limits")

	_, err = f.svc.Withdraw(ctx, CashRequest{UserID: user, AccountID: account, Amount: dec(26_000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLimitExceeded))
	require.Contains(t, f.audit.actions(), enums.AuditActionDepositCompleted)
	require.Contains(t, f.audit.actions(), enums.AuditActionWithdrawalCompleted)
}

func TestReverseUpdatesPublicStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, from := f.holder(t, 10_000, enums.KYCLevelBasic)
	_, to := f.holder(t, 0, enums.KYCLevelBasic)

	receipt, err := f.svc.Transfer(ctx, TransferRequest{UserID: user, FromAccountID: from, ToAccountID: to, Amount: dec(4_000)})
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, ReverseRequest{Reference: receipt.Reference, Reason: "disputed"})
	require.NoError(t, err)
	require.True(t, f.balance(t, from).Equal(dec(10_000)))

	status, err := f.svc.Status(ctx, receipt.Reference)
	require.NoError(t, err)
	require.Equal(t, StatusReversed, status.Status)

	_, err = f.svc.Reverse(ctx, ReverseRequest{Reference: receipt.Reference, Reason: "again"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.Status(ctx, "WTXUNKNOWN")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
