package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/screening"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Subject is the transaction being screened before it settles.
type Subject struct {
	Reference           string
	UserID              uuid.UUID
	AccountID           uuid.UUID
	Type                enums.TransactionType
	Amount              decimal.Decimal
	CounterpartyName    string
	CounterpartyCountry string
	IPAddress           string
	OccurredAt          time.Time
}

// outgoing reports whether money leaves the holder's account.
func (s Subject) outgoing() bool {
	return s.Type != enums.TransactionTypeDeposit
}

type finding struct {
	alertType   enums.AlertType
	severity    enums.AlertSeverity
	description string
	details     map[string]any
}

type evaluation struct {
	subject    Subject
	thresholds Thresholds
	loc        *time.Location
}

func (e evaluation) localTime() time.Time {
	return e.subject.OccurredAt.In(e.loc)
}

func (e evaluation) startOfDay() time.Time {
	local := e.localTime()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
}

type rule struct {
	name string
	eval func(ctx context.Context, e evaluation) ([]finding, error)
}

type accountReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindProfile(ctx context.Context, userID uuid.UUID) (*models.CustomerProfile, error)
}

// ruleSet holds the read dependencies shared by the rules.
type ruleSet struct {
	repo     Repository
	accounts accountReader
	screener screening.Matcher
	geo      CountryResolver
}

func (rs ruleSet) rules() []rule {
	return []rule{
		{name: "large_transaction", eval: rs.largeTransaction},
		{name: "ctr_required", eval: rs.ctrRequired},
		{name: "velocity", eval: rs.velocity},
		{name: "structuring", eval: rs.structuring},
		{name: "rapid_movement", eval: rs.rapidMovement},
		{name: "round_amount", eval: rs.roundAmount},
		{name: "unusual_hour", eval: rs.unusualHour},
		{name: "dormant_reactivation", eval: rs.dormantReactivation},
		{name: "sanctions", eval: rs.sanctions},
		{name: "geographic_risk", eval: rs.geographicRisk},
		{name: "ip_geography", eval: rs.ipGeography},
		{name: "pep", eval: rs.pep},
	}
}

func (rs ruleSet) isBusiness(ctx context.Context, accountID uuid.UUID) (bool, error) {
	account, err := rs.accounts.FindByID(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("load account: %w", err)
	}
	return account.Type == enums.AccountTypeBusiness, nil
}

func (rs ruleSet) largeTransaction(ctx context.Context, e evaluation) ([]finding, error) {
	business, err := rs.isBusiness(ctx, e.subject.AccountID)
	if err != nil {
		return nil, err
	}
	threshold := e.thresholds.LargeTransactionFor(business)
	if e.subject.Amount.LessThan(threshold) {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeLargeTransaction,
		severity:    enums.SeverityMedium,
		description: fmt.Sprintf("amount %s at or above large transaction threshold %s", e.subject.Amount.StringFixed(2), threshold.StringFixed(2)),
		details:     map[string]any{"threshold": threshold.StringFixed(2), "business": business},
	}}, nil
}

func (rs ruleSet) ctrRequired(_ context.Context, e evaluation) ([]finding, error) {
	if e.subject.Amount.LessThan(e.thresholds.CTR) {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeCTRRequired,
		severity:    enums.SeverityHigh,
		description: "currency transaction report required",
		details:     map[string]any{"threshold": e.thresholds.CTR.StringFixed(2)},
	}}, nil
}

func (rs ruleSet) velocity(ctx context.Context, e evaluation) ([]finding, error) {
	if !e.subject.outgoing() {
		return nil, nil
	}
	hourly, _, err := rs.repo.OutgoingActivity(ctx, e.subject.AccountID, e.subject.OccurredAt.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	if int(hourly)+1 > e.thresholds.VelocityHourlyCount {
		return []finding{{
			alertType:   enums.AlertTypeVelocity,
			severity:    enums.SeverityHigh,
			description: fmt.Sprintf("%d outgoing transactions within one hour", hourly+1),
			details:     map[string]any{"window": "1h", "count": hourly + 1, "cap": e.thresholds.VelocityHourlyCount},
		}}, nil
	}

	daily, total, err := rs.repo.OutgoingActivity(ctx, e.subject.AccountID, e.subject.OccurredAt.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	total = total.Add(e.subject.Amount)
	if int(daily)+1 > e.thresholds.VelocityDailyCount || total.GreaterThan(e.thresholds.VelocityDailyAmount) {
		return []finding{{
			alertType:   enums.AlertTypeVelocity,
			severity:    enums.SeverityMedium,
			description: fmt.Sprintf("%d outgoing transactions totalling %s within 24 hours", daily+1, total.StringFixed(2)),
			details:     map[string]any{"window": "24h", "count": daily + 1, "total": total.StringFixed(2)},
		}}, nil
	}
	return nil, nil
}

// structuring looks for repeated amounts kept just under the reporting level.
func (rs ruleSet) structuring(ctx context.Context, e evaluation) ([]finding, error) {
	if !e.subject.outgoing() {
		return nil, nil
	}
	business, err := rs.isBusiness(ctx, e.subject.AccountID)
	if err != nil {
		return nil, err
	}
	lower := e.thresholds.StructuringLowerBound
	upper := e.thresholds.LargeTransactionFor(business)
	inBand := func(amount decimal.Decimal) bool {
		return amount.GreaterThanOrEqual(lower) && amount.LessThan(upper)
	}
	if !inBand(e.subject.Amount) {
		return nil, nil
	}

	amounts, err := rs.repo.OutgoingAmounts(ctx, e.subject.AccountID, e.subject.OccurredAt.Add(-e.thresholds.StructuringWindow))
	if err != nil {
		return nil, err
	}
	prior := 0
	for _, amount := range amounts {
		if inBand(amount) {
			prior++
		}
	}
	if prior < e.thresholds.StructuringMinPrior {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeStructuring,
		severity:    enums.SeverityCritical,
		description: fmt.Sprintf("%d prior transactions just below reporting level %s", prior, upper.StringFixed(2)),
		details: map[string]any{
			"prior_count": prior,
			"band_lower":  lower.StringFixed(2),
			"band_upper":  upper.StringFixed(2),
			"window":      e.thresholds.StructuringWindow.String(),
		},
	}}, nil
}

func (rs ruleSet) rapidMovement(ctx context.Context, e evaluation) ([]finding, error) {
	deposits, withdrawals, err := rs.repo.CashFlowCounts(ctx, e.subject.AccountID, e.startOfDay())
	if err != nil {
		return nil, err
	}
	switch e.subject.Type {
	case enums.TransactionTypeDeposit:
		deposits++
	case enums.TransactionTypeWithdrawal:
		withdrawals++
	}
	floor := int64(e.thresholds.RapidMovementFloor)
	if deposits <= floor || withdrawals <= floor {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeRapidMovement,
		severity:    enums.SeverityHigh,
		description: fmt.Sprintf("%d deposits and %d withdrawals today", deposits, withdrawals),
		details:     map[string]any{"deposits": deposits, "withdrawals": withdrawals},
	}}, nil
}

func (rs ruleSet) roundAmount(ctx context.Context, e evaluation) ([]finding, error) {
	unit := e.thresholds.RoundAmountUnit
	isRound := func(amount decimal.Decimal) bool {
		return unit.IsPositive() && amount.GreaterThanOrEqual(e.thresholds.RoundAmountFloor) && amount.Mod(unit).IsZero()
	}
	if !e.subject.outgoing() || !isRound(e.subject.Amount) {
		return nil, nil
	}
	amounts, err := rs.repo.OutgoingAmounts(ctx, e.subject.AccountID, e.subject.OccurredAt.Add(-e.thresholds.RoundAmountWindow))
	if err != nil {
		return nil, err
	}
	count := 1
	for _, amount := range amounts {
		if isRound(amount) {
			count++
		}
	}
	if count < e.thresholds.RoundAmountMinCount {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeRoundAmount,
		severity:    enums.SeverityMedium,
		description: fmt.Sprintf("%d round-amount transactions within %s", count, e.thresholds.RoundAmountWindow),
		details:     map[string]any{"count": count, "unit": unit.StringFixed(2)},
	}}, nil
}

func (rs ruleSet) unusualHour(_ context.Context, e evaluation) ([]finding, error) {
	hour := e.localTime().Hour()
	start, end := e.thresholds.UnusualHourStart, e.thresholds.UnusualHourEnd
	var inWindow bool
	switch {
	case start == end:
		inWindow = false
	case start < end:
		inWindow = hour >= start && hour < end
	default:
		inWindow = hour >= start || hour < end
	}
	if !inWindow {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeUnusualHour,
		severity:    enums.SeverityLow,
		description: fmt.Sprintf("transaction at %02d:00 local time", hour),
		details:     map[string]any{"local_hour": hour},
	}}, nil
}

func (rs ruleSet) dormantReactivation(ctx context.Context, e evaluation) ([]finding, error) {
	if e.subject.Amount.LessThan(e.thresholds.DormantAmountFloor) {
		return nil, nil
	}
	account, err := rs.accounts.FindByID(ctx, e.subject.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.LastActivityAt == nil {
		return nil, nil
	}
	idle := e.subject.OccurredAt.Sub(*account.LastActivityAt)
	if idle < e.thresholds.DormancyThreshold {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeDormantReactivation,
		severity:    enums.SeverityHigh,
		description: fmt.Sprintf("account active again after %d days", int(idle.Hours()/24)),
		details:     map[string]any{"idle_days": int(idle.Hours() / 24)},
	}}, nil
}

func (rs ruleSet) sanctions(ctx context.Context, e evaluation) ([]finding, error) {
	if rs.screener == nil || e.subject.CounterpartyName == "" {
		return nil, nil
	}
	match, err := rs.screener.Match(ctx, e.subject.CounterpartyName)
	if err != nil {
		return nil, err
	}
	if !match.Matched {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypeSanctionsHit,
		severity:    enums.SeverityCritical,
		description: fmt.Sprintf("counterparty matches %s list entry", match.SourceList),
		details: map[string]any{
			"source_list":  match.SourceList,
			"matched_name": match.MatchedName,
			"score":        match.Score,
		},
	}}, nil
}

func (rs ruleSet) geographicRisk(_ context.Context, e evaluation) ([]finding, error) {
	country := e.subject.CounterpartyCountry
	if !e.thresholds.IsHighRiskCountry(country) {
		return nil, nil
	}
	return []finding{highRiskGeography("counterparty", country)}, nil
}

// ipGeography is separate from geographicRisk so a failed GeoIP lookup only
// loses the IP signal.
func (rs ruleSet) ipGeography(_ context.Context, e evaluation) ([]finding, error) {
	if rs.geo == nil || e.subject.IPAddress == "" {
		return nil, nil
	}
	country, err := rs.geo.CountryOf(e.subject.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve ip country: %w", err)
	}
	if !e.thresholds.IsHighRiskCountry(country) {
		return nil, nil
	}
	return []finding{highRiskGeography("ip", country)}, nil
}

func highRiskGeography(source, country string) finding {
	return finding{
		alertType:   enums.AlertTypeHighRiskGeography,
		severity:    enums.SeverityHigh,
		description: "transaction involves a high-risk jurisdiction",
		details:     map[string]any{"countries": map[string]string{source: country}},
	}
}

func (rs ruleSet) pep(ctx context.Context, e evaluation) ([]finding, error) {
	if e.subject.Amount.LessThan(e.thresholds.PEPAmountFloor) {
		return nil, nil
	}
	profile, err := rs.accounts.FindProfile(ctx, e.subject.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if !profile.IsPEP {
		return nil, nil
	}
	return []finding{{
		alertType:   enums.AlertTypePEPTransaction,
		severity:    enums.SeverityMedium,
		description: "politically exposed account holder",
		details:     map[string]any{"floor": e.thresholds.PEPAmountFloor.StringFixed(2)},
	}}, nil
}
