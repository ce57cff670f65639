package limits

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func karachi(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)
	return loc
}

func newTestService(t *testing.T, c *clock) Service {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		TxRunner:   db.Wrap(conn),
		Repository: NewRepository(conn),
		Locker:     locks.NewMemoryLocker(50 * time.Millisecond),
		Location:   karachi(t),
		Now:        c.now,
	})
	require.NoError(t, err)
	return svc
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestTierTable(t *testing.T) {
	cases := []struct {
		level                 enums.KYCLevel
		perTx, daily, monthly int64
	}{
		{enums.KYCLevelUnverified, 0, 0, 0},
		{enums.KYCLevelBasic, 25_000, 50_000, 200_000},
		{enums.KYCLevelStandard, 100_000, 250_000, 1_000_000},
		{enums.KYCLevelEnhanced, 5_000_000, 10_000_000, 50_000_000},
		{enums.KYCLevel(9), 0, 0, 0},
	}
	for _, tc := range cases {
		tier := TierFor(tc.level)
		if !tier.PerTransaction.Equal(dec(tc.perTx)) || !tier.Daily.Equal(dec(tc.daily)) || !tier.Monthly.Equal(dec(tc.monthly)) {
			t.Fatalf("tier %d mismatch: %+v", tc.level, tier)
		}
	}
}

func TestCheckLimitOrder(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)
	ctx := context.Background()
	user := uuid.New()

	res, err := svc.CheckLimit(ctx, user, dec(100))
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, ReasonKYCRequired, res.Reason)

	_, err = svc.SetKYCLevel(ctx, user, enums.KYCLevelBasic)
	require.NoError(t, err)

	res, err = svc.CheckLimit(ctx, user, dec(25_001))
	require.NoError(t, err)
	require.Equal(t, ReasonPerTransaction, res.Reason)

	require.NoError(t, svc.CommitSpend(ctx, user, dec(25_000), "WTX-A"))
	require.NoError(t, svc.CommitSpend(ctx, user, dec(20_000), "WTX-B"))

	res, err = svc.CheckLimit(ctx, user, dec(6_000))
	require.NoError(t, err)
	require.Equal(t, ReasonDaily, res.Reason)
	require.True(t, res.RemainingDaily.Equal(dec(5_000)))

	res, err = svc.CheckLimit(ctx, user, dec(5_000))
	require.NoError(t, err)
	require.True(t, res.Allowed)

	_, err = svc.CheckLimit(ctx, user, decimal.Zero)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMonthlyCeiling(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.SetKYCLevel(ctx, user, enums.KYCLevelBasic)
	require.NoError(t, err)

	for day := 0; day < 4; day++ {
		c.t = time.Date(2026, 3, 2+day, 6, 0, 0, 0, time.UTC)
		require.NoError(t, svc.CommitSpend(ctx, user, dec(50_000), uuid.NewString()))
	}
	c.t = time.Date(2026, 3, 20, 6, 0, 0, 0, time.UTC)
	res, err := svc.CheckLimit(ctx, user, dec(1))
	require.NoError(t, err)
	require.Equal(t, ReasonMonthly, res.Reason)
	require.True(t, res.RemainingMonthly.IsZero())
}

func TestLazyResetUsesBusinessTimezone(t *testing.T) {
	loc := karachi(t)
	c := &clock{t: time.Date(2026, 3, 10, 23, 30, 0, 0, loc)}
	svc := newTestService(t, c)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.SetKYCLevel(ctx, user, enums.KYCLevelBasic)
	require.NoError(t, err)

	require.NoError(t, svc.CommitSpend(ctx, user, dec(50_000), "WTX-1"))
	res, err := svc.CheckLimit(ctx, user, dec(1))
	require.NoError(t, err)
	require.Equal(t, ReasonDaily, res.Reason)

	c.t = time.Date(2026, 3, 11, 0, 5, 0, 0, loc)
	res, err = svc.CheckLimit(ctx, user, dec(1))
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.True(t, res.RemainingDaily.Equal(dec(50_000)))
	require.True(t, res.RemainingMonthly.Equal(dec(150_000)))

	row, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, row.DailySpent.IsZero(), "reset must be persisted by the check")

	c.t = time.Date(2026, 4, 1, 0, 1, 0, 0, loc)
	res, err = svc.CheckLimit(ctx, user, dec(1))
	require.NoError(t, err)
	require.True(t, res.RemainingMonthly.Equal(dec(200_000)))
}

func TestCommitSpendIsIdempotentPerReference(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.SetKYCLevel(ctx, user, enums.KYCLevelStandard)
	require.NoError(t, err)

	require.NoError(t, svc.CommitSpend(ctx, user, dec(10_000), "WTX-1"))
	require.NoError(t, svc.CommitSpend(ctx, user, dec(10_000), "WTX-1"))

	row, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, row.DailySpent.Equal(dec(10_000)))
	require.True(t, row.MonthlySpent.Equal(dec(10_000)))
	require.NotNil(t, row.LastTransactionRef)
}

func TestCommitSpendIgnoresReplayOfOlderReference(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.SetKYCLevel(ctx, user, enums.KYCLevelStandard)
	require.NoError(t, err)

	require.NoError(t, svc.CommitSpend(ctx, user, dec(10_000), "WTX-1"))
	require.NoError(t, svc.CommitSpend(ctx, user, dec(4_000), "WTX-2"))
	require.NoError(t, svc.CommitSpend(ctx, user, dec(10_000), "WTX-1"))

	row, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, row.DailySpent.Equal(dec(14_000)), "daily spent = %s", row.DailySpent)
	require.True(t, row.MonthlySpent.Equal(dec(14_000)))
	require.Equal(t, "WTX-2", *row.LastTransactionRef)
}

func TestSetKYCLevelReturnsPrevious(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)
	ctx := context.Background()
	user := uuid.New()

	prev, err := svc.SetKYCLevel(ctx, user, enums.KYCLevelStandard)
	require.NoError(t, err)
	require.Equal(t, enums.KYCLevelUnverified, prev)

	prev, err = svc.SetKYCLevel(ctx, user, enums.KYCLevelEnhanced)
	require.NoError(t, err)
	require.Equal(t, enums.KYCLevelStandard, prev)

	row, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, row.PerTransactionLimit.Equal(dec(5_000_000)))

	_, err = svc.SetKYCLevel(ctx, user, enums.KYCLevel(4))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAcquireUserSerializes(t *testing.T) {
	c := &clock{t: time.Now()}
	svc := newTestService(t, c)
	user := uuid.New()

	release, err := svc.AcquireUser(context.Background(), user)
	require.NoError(t, err)

	_, err = svc.AcquireUser(context.Background(), user)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict))

	release()
	again, err := svc.AcquireUser(context.Background(), user)
	require.NoError(t, err)
	again()
}
