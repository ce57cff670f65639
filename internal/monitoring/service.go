// Package monitoring screens transactions against compliance rules before
// they settle and records the resulting alerts and regulatory artifacts.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/internal/notifications"
	"github.com/angelmondragon/walletcore-backend/internal/screening"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/walletcore-backend/pkg/db/types"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
)

// PublicStatusUnderReview is the only status a holder sees for a blocked
// transaction.
const PublicStatusUnderReview = "under_review"

const defaultRuleTimeout = 2 * time.Second

// blockingTypes settle the verdict. Only CRITICAL alerts of these types block.
// DECEASED has no rule behind it yet.
var blockingTypes = map[enums.AlertType]struct{}{
	enums.AlertTypeSanctionsHit: {},
	enums.AlertTypeStructuring:  {},
	enums.AlertTypeDeceased:     {},
}

// Verdict is the outcome of screening one transaction.
type Verdict struct {
	Blocked bool                     `json:"blocked"`
	Alerts  []models.MonitoringAlert `json:"alerts"`
}

// DailyCounts are the compliance totals for one reporting window.
type DailyCounts struct {
	Alerts int64
	CTR    int64
	STR    int64
}

// Service is the monitoring and screening pipeline.
type Service interface {
	Evaluate(ctx context.Context, subject Subject) (*Verdict, error)
	IsBlocked(ctx context.Context, reference string) (bool, error)
	Counts(ctx context.Context, start, end time.Time) (*DailyCounts, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type complianceNotifier interface {
	NotifyTx(ctx context.Context, tx *gorm.DB, n notifications.Notification) error
}

type service struct {
	tx          txRunner
	repo        Repository
	rules       []rule
	outbox      outboxPublisher
	notifier    complianceNotifier
	auditor     audit.Recorder
	metrics     *metrics.MonitoringMetrics
	logg        *logger.Logger
	thresholds  Thresholds
	location    *time.Location
	currency    string
	recipient   string
	ruleTimeout time.Duration
	now         func() time.Time
}

// ServiceParams wires the pipeline. Screener and GeoIP are optional.
type ServiceParams struct {
	TxRunner            txRunner
	Repository          Repository
	Accounts            accountReader
	Screener            screening.Matcher
	GeoIP               CountryResolver
	Outbox              outboxPublisher
	Notifier            complianceNotifier
	Auditor             audit.Recorder
	Metrics             *metrics.MonitoringMetrics
	Logger              *logger.Logger
	Thresholds          Thresholds
	Location            *time.Location
	Currency            string
	ComplianceRecipient string
	RuleTimeout         time.Duration
	Now                 func() time.Time
}

// NewService validates params and builds the pipeline.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Repository == nil {
		return nil, errors.New("monitoring repository required")
	}
	if params.Accounts == nil {
		return nil, errors.New("accounts reader required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if params.Notifier == nil {
		return nil, errors.New("compliance notifier required")
	}
	if params.Auditor == nil {
		return nil, errors.New("audit recorder required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := params.RuleTimeout
	if timeout <= 0 {
		timeout = defaultRuleTimeout
	}
	recipient := strings.TrimSpace(params.ComplianceRecipient)
	if recipient == "" {
		recipient = "role:compliance"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	rs := ruleSet{repo: params.Repository, accounts: params.Accounts, screener: params.Screener, geo: params.GeoIP}
	return &service{
		tx:          params.TxRunner,
		repo:        params.Repository,
		rules:       rs.rules(),
		outbox:      params.Outbox,
		notifier:    params.Notifier,
		auditor:     params.Auditor,
		metrics:     params.Metrics,
		logg:        params.Logger,
		thresholds:  params.Thresholds,
		location:    loc,
		currency:    params.Currency,
		recipient:   recipient,
		ruleTimeout: timeout,
		now:         now,
	}, nil
}

// Evaluate runs every rule, persists the alerts and artifacts and returns the
// verdict. A rule that fails is treated as not matching.
func (s *service) Evaluate(ctx context.Context, subject Subject) (*Verdict, error) {
	if strings.TrimSpace(subject.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference required")
	}
	if subject.UserID == uuid.Nil || subject.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and account required")
	}
	if !subject.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if subject.OccurredAt.IsZero() {
		subject.OccurredAt = s.now()
	}
	if s.logg != nil {
		ctx = s.logg.WithTransactionRef(ctx, subject.Reference)
	}

	findings := s.runRules(ctx, evaluation{subject: subject, thresholds: s.thresholds, loc: s.location})

	now := s.now().UTC()
	alerts := make([]models.MonitoringAlert, 0, len(findings))
	for _, f := range findings {
		details, err := json.Marshal(f.details)
		if err != nil {
			details = json.RawMessage(`{}`)
		}
		alerts = append(alerts, models.MonitoringAlert{
			ID:             uuid.New(),
			Type:           f.alertType,
			Severity:       f.severity,
			Description:    f.description,
			TransactionRef: subject.Reference,
			UserID:         subject.UserID,
			Status:         enums.AlertStatusOpen,
			Details:        details,
			CreatedAt:      now,
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity.Rank() != alerts[j].Severity.Rank() {
			return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
		}
		return alerts[i].Type < alerts[j].Type
	})

	verdict := &Verdict{Blocked: isBlocking(alerts), Alerts: alerts}
	for _, alert := range alerts {
		s.metrics.IncAlert(string(alert.Type), string(alert.Severity))
	}
	if verdict.Blocked {
		s.metrics.IncBlocked()
	}

	if err := s.persist(ctx, subject, verdict, now); err != nil && s.logg != nil {
		s.logg.Error(ctx, "monitoring side effects not persisted", err)
	}
	return verdict, nil
}

func isBlocking(alerts []models.MonitoringAlert) bool {
	for _, alert := range alerts {
		if alert.Severity != enums.SeverityCritical {
			continue
		}
		if _, ok := blockingTypes[alert.Type]; ok {
			return true
		}
	}
	return false
}

// runRules evaluates the rules concurrently. Failures are counted, logged and
// written to the audit trail, then dropped.
func (s *service) runRules(ctx context.Context, e evaluation) []finding {
	results := make([][]finding, len(s.rules))
	failures := make([]error, len(s.rules))

	var g errgroup.Group
	for i, r := range s.rules {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					failures[i] = fmt.Errorf("%s: panic: %v", r.name, p)
				}
			}()
			rctx, cancel := context.WithTimeout(ctx, s.ruleTimeout)
			defer cancel()
			found, err := r.eval(rctx, e)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", r.name, err)
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var combined error
	failed := make([]string, 0)
	for i, err := range failures {
		if err == nil {
			continue
		}
		name := s.rules[i].name
		failed = append(failed, name)
		combined = multierr.Append(combined, err)
		s.metrics.IncRuleError(name)
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "rule", name), "monitoring rule failed; treating as no match", err)
		}
	}
	if combined != nil {
		messages := make([]string, 0, len(failed))
		for _, err := range multierr.Errors(combined) {
			messages = append(messages, err.Error())
		}
		s.auditor.Record(ctx, audit.Event{
			UserID:     &e.subject.UserID,
			Action:     enums.AuditActionMonitoringRuleFailure,
			EntityType: enums.AuditEntityMonitoringRule,
			EntityID:   e.subject.Reference,
			NewValues:  map[string]any{"rules": failed, "errors": messages},
		})
	}

	var out []finding
	for _, found := range results {
		out = append(out, found...)
	}
	return out
}

func (s *service) persist(ctx context.Context, subject Subject, verdict *Verdict, now time.Time) error {
	ctrDue := subject.Amount.GreaterThanOrEqual(s.thresholds.CTR)
	if len(verdict.Alerts) == 0 && !ctrDue {
		return nil
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.InsertAlerts(ctx, verdict.Alerts); err != nil {
			return fmt.Errorf("insert alerts: %w", err)
		}

		if ctrDue {
			ids := alertIDs(verdict.Alerts, func(a models.MonitoringAlert) bool { return a.Type == enums.AlertTypeCTRRequired })
			if _, err := repo.InsertReport(ctx, s.report(enums.ReportTypeCTR, subject, ids, "amount at or above CTR threshold", now)); err != nil {
				return fmt.Errorf("insert ctr: %w", err)
			}
		}

		critical := alertIDs(verdict.Alerts, func(a models.MonitoringAlert) bool { return a.Severity == enums.SeverityCritical })
		if len(critical) > 0 {
			if _, err := repo.InsertReport(ctx, s.report(enums.ReportTypeSTR, subject, critical, narrative(verdict.Alerts), now)); err != nil {
				return fmt.Errorf("insert str: %w", err)
			}
		}

		if verdict.Blocked {
			blocking := alertIDs(verdict.Alerts, func(a models.MonitoringAlert) bool {
				_, ok := blockingTypes[a.Type]
				return ok && a.Severity == enums.SeverityCritical
			})
			if _, err := repo.InsertBlock(ctx, &models.TransactionBlock{
				ID:             uuid.New(),
				TransactionRef: subject.Reference,
				UserID:         subject.UserID,
				AlertIDs:       blocking,
				PublicStatus:   PublicStatusUnderReview,
				CreatedAt:      now,
			}); err != nil {
				return fmt.Errorf("insert block: %w", err)
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventTransactionBlocked,
				AggregateType: enums.AggregateMonitoringAlert,
				AggregateID:   verdict.Alerts[0].ID,
				Initiator:     &outbox.Initiator{System: "transaction-monitoring"},
				OccurredAt:    now,
				Data: payloads.TransactionBlockedEvent{
					Reference: subject.Reference,
					UserID:    subject.UserID,
					Amount:    subject.Amount,
					AlertIDs:  blocking,
					Types:     alertTypes(verdict.Alerts, enums.SeverityCritical),
				},
			}); err != nil {
				return fmt.Errorf("emit blocked event: %w", err)
			}
		}

		for _, alert := range verdict.Alerts {
			if alert.Severity != enums.SeverityHigh && alert.Severity != enums.SeverityCritical {
				continue
			}
			if err := s.notifier.NotifyTx(ctx, tx, notifications.Notification{
				Recipient: s.recipient,
				Title:     fmt.Sprintf("%s %s alert", alert.Severity, alert.Type),
				Body:      alert.Description,
				Data: map[string]string{
					"alert_id":        alert.ID.String(),
					"transaction_ref": alert.TransactionRef,
					"severity":        string(alert.Severity),
				},
			}); err != nil {
				return fmt.Errorf("notify compliance: %w", err)
			}
		}
		return nil
	})
}

func (s *service) report(reportType enums.ComplianceReportType, subject Subject, alertIDs []uuid.UUID, narrative string, now time.Time) *models.ComplianceReport {
	return &models.ComplianceReport{
		ID:             uuid.New(),
		ReportType:     reportType,
		TransactionRef: subject.Reference,
		UserID:         subject.UserID,
		Amount:         subject.Amount,
		Currency:       s.currency,
		AlertIDs:       alertIDs,
		Narrative:      narrative,
		Status:         enums.ReportStatusDraft,
		CreatedAt:      now,
	}
}

func alertIDs(alerts []models.MonitoringAlert, keep func(models.MonitoringAlert) bool) dbtypes.UUIDArray {
	out := dbtypes.UUIDArray{}
	for _, alert := range alerts {
		if keep(alert) {
			out = append(out, alert.ID)
		}
	}
	return out
}

func alertTypes(alerts []models.MonitoringAlert, severity enums.AlertSeverity) []enums.AlertType {
	var out []enums.AlertType
	for _, alert := range alerts {
		if alert.Severity == severity {
			out = append(out, alert.Type)
		}
	}
	return out
}

func narrative(alerts []models.MonitoringAlert) string {
	parts := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		if alert.Severity == enums.SeverityCritical {
			parts = append(parts, fmt.Sprintf("%s: %s", alert.Type, alert.Description))
		}
	}
	return strings.Join(parts, "; ")
}

func (s *service) IsBlocked(ctx context.Context, reference string) (bool, error) {
	_, err := s.repo.FindBlock(ctx, reference)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction block")
}

func (s *service) Counts(ctx context.Context, start, end time.Time) (*DailyCounts, error) {
	alerts, err := s.repo.CountAlerts(ctx, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count alerts")
	}
	ctr, err := s.repo.CountReports(ctx, enums.ReportTypeCTR, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count ctr reports")
	}
	str, err := s.repo.CountReports(ctx, enums.ReportTypeSTR, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count str reports")
	}
	return &DailyCounts{Alerts: alerts, CTR: ctr, STR: str}, nil
}
