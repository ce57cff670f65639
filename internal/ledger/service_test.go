package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/accounts"
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

type fixture struct {
	conn     *gorm.DB
	svc      Service
	accounts accounts.Repository
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	c := &clock{t: time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)}
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)

	accountsRepo := accounts.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		TxRunner:   db.Wrap(conn),
		Repository: NewRepository(conn),
		Accounts:   accountsRepo,
		Locker:     locks.NewMemoryLocker(5 * time.Second),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Currency:   "PKR",
		Location:   loc,
		Now:        c.now,
	})
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, accounts: accountsRepo, clock: c}
}

func (f *fixture) account(t *testing.T, balance int64) uuid.UUID {
	t.Helper()
	user := uuid.New()
	account := &models.Account{
		ID:       uuid.New(),
		UserID:   &user,
		Type:     enums.AccountTypeCustomer,
		Currency: "PKR",
		Status:   enums.AccountStatusActive,
		Balance:  decimal.Zero,
	}
	require.NoError(t, f.accounts.Create(context.Background(), account))
	if balance > 0 {
		_, err := f.svc.Deposit(context.Background(), SingleInput{AccountID: account.ID, Amount: dec(balance)})
		require.NoError(t, err)
	}
	return account.ID
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	bal, err := f.svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return bal
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equalf(t, code, pkgerrors.CodeOf(err), "unexpected error: %v", err)
}

func TestRecordTransferMovesMoneyAndWritesBothEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 10_000)
	b := f.account(t, 0)

	res, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(3_000)})
	require.NoError(t, err)
	require.True(t, res.FromBalance.Equal(dec(7_000)))
	require.True(t, res.ToBalance.Equal(dec(3_000)))
	require.Len(t, res.Reference, 29)
	require.Equal(t, "WTX", res.Reference[:3])

	require.True(t, f.balance(t, a).Equal(dec(7_000)))
	require.True(t, f.balance(t, b).Equal(dec(3_000)))

	detail, err := f.svc.GetTransaction(ctx, res.Reference)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionStatusCompleted, detail.Transaction.Status)
	require.Equal(t, enums.TransactionTypeTransfer, detail.Transaction.Type)
	require.Len(t, detail.Entries, 2)

	var debits, credits decimal.Decimal
	for _, entry := range detail.Entries {
		require.True(t, entry.Amount.Equal(dec(3_000)))
		switch entry.EntryType {
		case enums.EntryTypeDebit:
			require.Equal(t, a, entry.AccountID)
			require.True(t, entry.BalanceAfter.Equal(dec(7_000)))
			debits = debits.Add(entry.Amount)
		case enums.EntryTypeCredit:
			require.Equal(t, b, entry.AccountID)
			require.True(t, entry.BalanceAfter.Equal(dec(3_000)))
			credits = credits.Add(entry.Amount)
		}
	}
	require.True(t, debits.Equal(credits))

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventTransactionCompleted).Count(&events).Error)
	require.EqualValues(t, 2, events)
}

func TestRecordTransferInsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 500)
	b := f.account(t, 0)

	_, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(501)})
	requireCode(t, err, pkgerrors.CodeInsufficientFunds)

	require.True(t, f.balance(t, a).Equal(dec(500)))
	require.True(t, f.balance(t, b).IsZero())

	var transfers int64
	require.NoError(t, f.conn.Model(&models.Transaction{}).Where("type = ?", enums.TransactionTypeTransfer).Count(&transfers).Error)
	require.Zero(t, transfers)
}

func TestRecordTransferRejectsInactiveAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 1_000)
	b := f.account(t, 0)

	ok, err := f.accounts.UpdateStatus(ctx, b, enums.AccountStatusActive, enums.AccountStatusFrozen)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(100)})
	requireCode(t, err, pkgerrors.CodeAccountNotActive)

	_, err = f.svc.RecordTransfer(ctx, TransferInput{From: a, To: uuid.New(), Amount: dec(100)})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestRecordTransferValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 1_000)
	b := f.account(t, 0)

	cases := []TransferInput{
		{From: a, To: a, Amount: dec(10)},
		{From: a, To: b, Amount: decimal.Zero},
		{From: a, To: b, Amount: dec(-5)},
		{From: a, To: b, Amount: decimal.RequireFromString("1.005")},
		{From: a, To: b, Amount: dec(10), Type: enums.TransactionTypeDeposit},
		{From: uuid.Nil, To: b, Amount: dec(10)},
	}
	for _, input := range cases {
		_, err := f.svc.RecordTransfer(ctx, input)
		requireCode(t, err, pkgerrors.CodeValidation)
	}

	_, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: decimal.RequireFromString("10.50")})
	require.NoError(t, err)
}

func TestSuppliedReferenceIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 1_000)
	b := f.account(t, 0)

	ref := NewReference(f.clock.now())
	_, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(100), Reference: ref})
	require.NoError(t, err)

	_, err = f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(100), Reference: ref})
	requireCode(t, err, pkgerrors.CodeConflict)
	require.True(t, f.balance(t, a).Equal(dec(900)))
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 5_000)
	b := f.account(t, 5_000)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordTransfer(ctx, TransferInput{From: from, To: to, Amount: dec(100)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	total := f.balance(t, a).Add(f.balance(t, b))
	require.True(t, total.Equal(dec(10_000)), "total drifted to %s", total)
	require.True(t, f.balance(t, a).Equal(dec(5_000)))

	var entries int64
	require.NoError(t, f.conn.Model(&models.LedgerEntry{}).Count(&entries).Error)
	require.EqualValues(t, 2+2*workers, entries)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	cases := []struct {
		name    string
		balance int64
		amount  int64
	}{
		{name: "full balance", balance: 1_000, amount: 1_000},
		{name: "partial amount", balance: 1_000, amount: 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.account(t, tc.balance)
			b := f.account(t, 0)

			const workers = 10
			var (
				wg    sync.WaitGroup
				start = make(chan struct{})
				errs  = make(chan error, workers)
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(tc.amount)})
					errs <- err
				}()
			}
			close(start)
			wg.Wait()
			close(errs)

			successes := 0
			for err := range errs {
				if err == nil {
					successes++
					continue
				}
				requireCode(t, err, pkgerrors.CodeInsufficientFunds)
			}

			want := int(tc.balance / tc.amount)
			require.Equal(t, want, successes)
			moved := dec(int64(want) * tc.amount)
			require.True(t, f.balance(t, a).Equal(dec(tc.balance).Sub(moved)))
			require.False(t, f.balance(t, a).IsNegative())
			require.True(t, f.balance(t, b).Equal(moved))
		})
	}
}

func TestWithdrawDebitsSingleAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 1_000)

	res, err := f.svc.Withdraw(ctx, SingleInput{AccountID: a, Amount: dec(400)})
	require.NoError(t, err)
	require.True(t, res.Balance.Equal(dec(600)))

	_, err = f.svc.Withdraw(ctx, SingleInput{AccountID: a, Amount: dec(601)})
	requireCode(t, err, pkgerrors.CodeInsufficientFunds)

	detail, err := f.svc.GetTransaction(ctx, res.Reference)
	require.NoError(t, err)
	require.Len(t, detail.Entries, 1)
	require.Equal(t, enums.EntryTypeDebit, detail.Entries[0].EntryType)
	require.Nil(t, detail.Transaction.DestinationAccountID)
}

func TestReverseRefundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 1_000)
	b := f.account(t, 0)

	original, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(250)})
	require.NoError(t, err)

	refund, err := f.svc.Reverse(ctx, ReverseInput{Reference: original.Reference, Reason: "customer dispute"})
	require.NoError(t, err)
	require.NotEqual(t, original.Reference, refund.Reference)
	require.True(t, f.balance(t, a).Equal(dec(1_000)))
	require.True(t, f.balance(t, b).IsZero())

	detail, err := f.svc.GetTransaction(ctx, original.Reference)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionStatusReversed, detail.Transaction.Status)
	require.NotNil(t, detail.Transaction.ReversedAt)

	refundDetail, err := f.svc.GetTransaction(ctx, refund.Reference)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionTypeRefund, refundDetail.Transaction.Type)
	require.NotNil(t, refundDetail.Transaction.ReversalOf)
	require.Equal(t, original.Reference, *refundDetail.Transaction.ReversalOf)

	_, err = f.svc.Reverse(ctx, ReverseInput{Reference: original.Reference})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.svc.Reverse(ctx, ReverseInput{Reference: refund.Reference})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestReverseRequiresFundsAndTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 1_000)
	b := f.account(t, 0)
	c := f.account(t, 0)

	original, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(300)})
	require.NoError(t, err)
	_, err = f.svc.RecordTransfer(ctx, TransferInput{From: b, To: c, Amount: dec(300)})
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, ReverseInput{Reference: original.Reference})
	requireCode(t, err, pkgerrors.CodeInsufficientFunds)

	deposit, err := f.svc.Deposit(ctx, SingleInput{AccountID: a, Amount: dec(10)})
	require.NoError(t, err)
	_, err = f.svc.Reverse(ctx, ReverseInput{Reference: deposit.Reference})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.svc.Reverse(ctx, ReverseInput{Reference: "WTX-missing"})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestGetHistoryPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 0)
	for i := 1; i <= 5; i++ {
		f.clock.advance(time.Second)
		_, err := f.svc.Deposit(ctx, SingleInput{AccountID: a, Amount: dec(int64(i * 100))})
		require.NoError(t, err)
	}

	var seen []decimal.Decimal
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.GetHistory(ctx, HistoryParams{AccountID: a, Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, item := range page.Items {
			seen = append(seen, item.Amount)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	require.Equal(t, 3, pages)
	require.Len(t, seen, 5)
	require.True(t, seen[0].Equal(dec(500)))
	require.True(t, seen[4].Equal(dec(100)))

	_, err := f.svc.GetHistory(ctx, HistoryParams{AccountID: a, Cursor: "not-a-cursor"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestDailyReportSeparatesExternalFlows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 10_000)
	b := f.account(t, 0)

	_, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(3_000)})
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, SingleInput{AccountID: b, Amount: dec(500)})
	require.NoError(t, err)

	summary, err := f.svc.DailyReport(ctx, f.clock.now())
	require.NoError(t, err)
	require.True(t, summary.TotalDebits.Equal(dec(3_000)))
	require.True(t, summary.TotalCredits.Equal(dec(3_000)))
	require.True(t, summary.ExternalCredits.Equal(dec(10_000)))
	require.True(t, summary.ExternalDebits.Equal(dec(500)))
	require.EqualValues(t, 4, summary.EntryCount)
	require.EqualValues(t, 3, summary.TransactionCount)
	require.Equal(t, 10, summary.Date.Day())

	empty, err := f.svc.DailyReport(ctx, f.clock.now().AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Zero(t, empty.EntryCount)
}

func TestDailyReportFlagsImbalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, 1_000)
	b := f.account(t, 0)

	res, err := f.svc.RecordTransfer(ctx, TransferInput{From: a, To: b, Amount: dec(100)})
	require.NoError(t, err)

	stray := models.LedgerEntry{
		ID:             uuid.New(),
		TransactionRef: res.Reference,
		AccountID:      b,
		EntryType:      enums.EntryTypeCredit,
		Amount:         dec(1),
		BalanceAfter:   dec(101),
		Currency:       "PKR",
		CreatedAt:      f.clock.now().UTC(),
	}
	require.NoError(t, f.conn.Create(&stray).Error)

	summary, err := f.svc.DailyReport(ctx, f.clock.now())
	requireCode(t, err, pkgerrors.CodeIntegrityViolation)
	require.NotNil(t, summary)
	require.True(t, summary.TotalCredits.Equal(dec(101)))
	require.False(t, summary.Balanced())
}

func TestDayBoundsUsesLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)

	// 20:30 UTC on the 9th is 01:30 on the 10th in Karachi.
	start, end := DayBounds(time.Date(2026, 3, 9, 20, 30, 0, 0, time.UTC), loc)
	require.Equal(t, time.Date(2026, 3, 9, 19, 0, 0, 0, time.UTC), start.UTC())
	require.Equal(t, 24*time.Hour, end.Sub(start))
}
