package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// DailySummary aggregates one local calendar day of ledger activity.
// TotalDebits and TotalCredits cover two-sided movements only and must match.
// Deposits and withdrawals touch a single account and are reported as
// external flows.
type DailySummary struct {
	Date             time.Time       `json:"date"`
	TotalDebits      decimal.Decimal `json:"total_debits"`
	TotalCredits     decimal.Decimal `json:"total_credits"`
	ExternalCredits  decimal.Decimal `json:"external_credits"`
	ExternalDebits   decimal.Decimal `json:"external_debits"`
	EntryCount       int64           `json:"entry_count"`
	TransactionCount int64           `json:"transaction_count"`
}

// Balanced reports whether internal debits equal internal credits.
func (d DailySummary) Balanced() bool {
	return d.TotalDebits.Equal(d.TotalCredits)
}

// DayBounds returns [start, end) of the calendar day containing date in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := date.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// DailyReport totals the day's entries. When internal debits and credits
// disagree the summary is still returned together with an integrity error.
func (s *service) DailyReport(ctx context.Context, date time.Time) (*DailySummary, error) {
	start, end := DayBounds(date, s.location)

	totals, err := s.repo.DailyTotals(ctx, start.UTC(), end.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate ledger entries")
	}
	count, err := s.repo.CountTransactions(ctx, start.UTC(), end.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count transactions")
	}

	summary := &DailySummary{
		Date:             start,
		TotalDebits:      decimal.Zero,
		TotalCredits:     decimal.Zero,
		ExternalCredits:  decimal.Zero,
		ExternalDebits:   decimal.Zero,
		TransactionCount: count,
	}
	for _, row := range totals {
		summary.EntryCount += row.Entries
		twoSided := row.TransactionType.IsTwoSided()
		switch {
		case row.EntryType == enums.EntryTypeDebit && twoSided:
			summary.TotalDebits = summary.TotalDebits.Add(row.Total)
		case row.EntryType == enums.EntryTypeCredit && twoSided:
			summary.TotalCredits = summary.TotalCredits.Add(row.Total)
		case row.EntryType == enums.EntryTypeDebit:
			summary.ExternalDebits = summary.ExternalDebits.Add(row.Total)
		default:
			summary.ExternalCredits = summary.ExternalCredits.Add(row.Total)
		}
	}

	if !summary.Balanced() {
		if s.logg != nil {
			s.logg.Error(ctx, "ledger imbalance detected", pkgerrors.New(pkgerrors.CodeIntegrityViolation, "debits do not equal credits"))
		}
		return summary, pkgerrors.New(pkgerrors.CodeIntegrityViolation, "daily debits do not equal credits").
			WithDetails(map[string]any{
				"date":          start.Format("2006-01-02"),
				"total_debits":  summary.TotalDebits.StringFixed(2),
				"total_credits": summary.TotalCredits.StringFixed(2),
			})
	}
	return summary, nil
}
