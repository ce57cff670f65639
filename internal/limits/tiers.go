package limits

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Tier is the set of ceilings granted by a KYC level.
type Tier struct {
	PerTransaction decimal.Decimal
	Daily          decimal.Decimal
	Monthly        decimal.Decimal
}

// tiers is the single source of truth for KYC ceilings.
var tiers = map[enums.KYCLevel]Tier{
	enums.KYCLevelUnverified: {
		PerTransaction: decimal.Zero,
		Daily:          decimal.Zero,
		Monthly:        decimal.Zero,
	},
	enums.KYCLevelBasic: {
		PerTransaction: decimal.NewFromInt(25_000),
		Daily:          decimal.NewFromInt(50_000),
		Monthly:        decimal.NewFromInt(200_000),
	},
	enums.KYCLevelStandard: {
		PerTransaction: decimal.NewFromInt(100_000),
		Daily:          decimal.NewFromInt(250_000),
		Monthly:        decimal.NewFromInt(1_000_000),
	},
	enums.KYCLevelEnhanced: {
		PerTransaction: decimal.NewFromInt(5_000_000),
		Daily:          decimal.NewFromInt(10_000_000),
		Monthly:        decimal.NewFromInt(50_000_000),
	},
}

// TierFor returns the ceilings for level. Unknown levels get tier 0.
func TierFor(level enums.KYCLevel) Tier {
	if tier, ok := tiers[level]; ok {
		return tier
	}
	return tiers[enums.KYCLevelUnverified]
}

func nextDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc).UTC()
}

func nextMonth(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, loc).UTC()
}

// applyReset zeroes counters whose window has rolled over and reports
// whether the row changed.
func applyReset(row *models.UserLimits, now time.Time, loc *time.Location) bool {
	changed := false
	if !now.Before(row.DailyResetAt) {
		row.DailySpent = decimal.Zero
		row.DailyResetAt = nextDay(now, loc)
		changed = true
	}
	if !now.Before(row.MonthlyResetAt) {
		row.MonthlySpent = decimal.Zero
		row.MonthlyResetAt = nextMonth(now, loc)
		changed = true
	}
	return changed
}

func newLimitsRow(userID uuid.UUID, now time.Time, loc *time.Location) *models.UserLimits {
	tier := TierFor(enums.KYCLevelUnverified)
	return &models.UserLimits{
		UserID:              userID,
		KYCLevel:            enums.KYCLevelUnverified,
		PerTransactionLimit: tier.PerTransaction,
		DailyLimit:          tier.Daily,
		MonthlyLimit:        tier.Monthly,
		DailySpent:          decimal.Zero,
		MonthlySpent:        decimal.Zero,
		DailyResetAt:        nextDay(now, loc),
		MonthlyResetAt:      nextMonth(now, loc),
		CreatedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}
}
