package monitoring

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
)

// Thresholds is the rule configuration. It is built once at startup and
// passed by value to every evaluation.
type Thresholds struct {
	PersonalLargeTransaction decimal.Decimal
	BusinessLargeTransaction decimal.Decimal
	CTR                      decimal.Decimal

	VelocityHourlyCount int
	VelocityDailyCount  int
	VelocityDailyAmount decimal.Decimal

	StructuringWindow     time.Duration
	StructuringMinPrior   int
	StructuringLowerBound decimal.Decimal

	RapidMovementFloor int

	RoundAmountUnit     decimal.Decimal
	RoundAmountFloor    decimal.Decimal
	RoundAmountMinCount int
	RoundAmountWindow   time.Duration

	UnusualHourStart int
	UnusualHourEnd   int

	DormancyThreshold  time.Duration
	DormantAmountFloor decimal.Decimal

	SanctionsMatchScore float64
	PEPAmountFloor      decimal.Decimal

	highRiskCountries []string
}

// ThresholdsFromConfig copies the monitoring settings into a Thresholds value.
func ThresholdsFromConfig(cfg config.MonitoringConfig) Thresholds {
	return Thresholds{
		PersonalLargeTransaction: cfg.PersonalLargeTransaction,
		BusinessLargeTransaction: cfg.BusinessLargeTransaction,
		CTR:                      cfg.CTRThreshold,
		VelocityHourlyCount:      cfg.VelocityHourlyCount,
		VelocityDailyCount:       cfg.VelocityDailyCount,
		VelocityDailyAmount:      cfg.VelocityDailyAmount,
		StructuringWindow:        cfg.StructuringWindow,
		StructuringMinPrior:      cfg.StructuringMinPrior,
		StructuringLowerBound:    cfg.StructuringLowerBound,
		RapidMovementFloor:       cfg.RapidMovementFloor,
		RoundAmountUnit:          cfg.RoundAmountUnit,
		RoundAmountFloor:         cfg.RoundAmountFloor,
		RoundAmountMinCount:      cfg.RoundAmountMinCount,
		RoundAmountWindow:        cfg.RoundAmountWindow,
		UnusualHourStart:         cfg.UnusualHourStart,
		UnusualHourEnd:           cfg.UnusualHourEnd,
		DormancyThreshold:        cfg.DormancyThreshold,
		DormantAmountFloor:       cfg.DormantAmountFloor,
		SanctionsMatchScore:      cfg.SanctionsMatchScore,
		PEPAmountFloor:           cfg.PEPAmountFloor,
		highRiskCountries:        normalizeCountries(cfg.HighRiskCountries),
	}
}

// WithHighRiskCountries returns a copy of t using countries as the high-risk set.
func (t Thresholds) WithHighRiskCountries(countries ...string) Thresholds {
	t.highRiskCountries = normalizeCountries(countries)
	return t
}

// IsHighRiskCountry reports whether the ISO code is in the high-risk set.
func (t Thresholds) IsHighRiskCountry(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	_, found := slices.BinarySearch(t.highRiskCountries, code)
	return found
}

// LargeTransactionFor picks the large-transaction threshold by account type.
func (t Thresholds) LargeTransactionFor(business bool) decimal.Decimal {
	if business {
		return t.BusinessLargeTransaction
	}
	return t.PersonalLargeTransaction
}

func normalizeCountries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
