// Package reports produces the end-of-day ledger report: a balanced-books
// check over the business day plus the day's compliance counts.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/internal/ledger"
	"github.com/angelmondragon/walletcore-backend/internal/monitoring"
	"github.com/angelmondragon/walletcore-backend/internal/notifications"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
)

const dateLayout = "2006-01-02"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dailySummarizer interface {
	DailyReport(ctx context.Context, date time.Time) (*ledger.DailySummary, error)
}

type complianceCounter interface {
	Counts(ctx context.Context, start, end time.Time) (*monitoring.DailyCounts, error)
}

type Service struct {
	tx         txRunner
	repo       Repository
	ledger     dailySummarizer
	monitoring complianceCounter
	outbox     outboxPublisher
	notifier   notifications.Notifier
	auditor    audit.Recorder
	exporter   RowInserter
	table      string
	logg       *logger.Logger
	location   *time.Location
	currency   string
	recipient  string
	now        func() time.Time
}

// ServiceParams wires the report generator. Exporter is optional.
type ServiceParams struct {
	TxRunner            txRunner
	Repository          Repository
	Ledger              dailySummarizer
	Monitoring          complianceCounter
	Outbox              outboxPublisher
	Notifier            notifications.Notifier
	Auditor             audit.Recorder
	Exporter            RowInserter
	ExportTable         string
	Logger              *logger.Logger
	Location            *time.Location
	Currency            string
	OperationsRecipient string
	Now                 func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case params.Repository == nil:
		return nil, errors.New("reports repository required")
	case params.Ledger == nil:
		return nil, errors.New("ledger required")
	case params.Monitoring == nil:
		return nil, errors.New("monitoring counts required")
	case params.Outbox == nil:
		return nil, errors.New("outbox publisher required")
	case params.Notifier == nil:
		return nil, errors.New("notifier required")
	case params.Auditor == nil:
		return nil, errors.New("audit recorder required")
	}
	if params.Exporter != nil && strings.TrimSpace(params.ExportTable) == "" {
		return nil, errors.New("export table required when exporter is set")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	recipient := strings.TrimSpace(params.OperationsRecipient)
	if recipient == "" {
		recipient = "role:operations"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		tx:         params.TxRunner,
		repo:       params.Repository,
		ledger:     params.Ledger,
		monitoring: params.Monitoring,
		outbox:     params.Outbox,
		notifier:   params.Notifier,
		auditor:    params.Auditor,
		exporter:   params.Exporter,
		table:      strings.TrimSpace(params.ExportTable),
		logg:       params.Logger,
		location:   loc,
		currency:   params.Currency,
		recipient:  recipient,
		now:        now,
	}, nil
}

// Yesterday is the local business day that closed most recently.
func (s *Service) Yesterday() time.Time {
	local := s.now().In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, s.location)
}

// Generate builds the report for date once. A completed report is returned
// as stored (and exported if an earlier export failed); a day that already
// failed its integrity check returns the stored row with the violation error
// and does not notify again.
func (s *Service) Generate(ctx context.Context, date time.Time) (*models.LedgerDailyReport, error) {
	key := date.In(s.location).Format(dateLayout)
	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "report_date", key)
	}

	existing, err := s.repo.Find(ctx, key)
	switch {
	case err == nil:
		return s.resume(ctx, existing)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load daily report")
	}

	summary, err := s.ledger.DailyReport(ctx, date)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeIntegrityViolation) && summary != nil {
			return s.recordViolation(ctx, key, summary, err)
		}
		return nil, err
	}

	start, end := ledger.DayBounds(date, s.location)
	counts, err := s.monitoring.Counts(ctx, start, end)
	if err != nil {
		return nil, err
	}

	row := newReportRow(key, summary, enums.DailyReportCompleted, s.now().UTC())
	row.AlertCount = counts.Alerts
	row.CTRCount = counts.CTR
	row.STRCount = counts.STR

	created := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inserted, err := s.repo.WithTx(tx).CreateIfAbsent(ctx, row)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist daily report")
		}
		if !inserted {
			return nil
		}
		created = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDailyReportCompleted,
			AggregateType: enums.AggregateDailyReport,
			AggregateID:   reportAggregateID(key),
			Initiator:     &outbox.Initiator{System: "ledger-daily-report"},
			Data: payloads.DailyReportCompletedEvent{
				ReportDate:   key,
				Status:       row.Status,
				TotalDebits:  row.TotalDebits,
				TotalCredits: row.TotalCredits,
				EntryCount:   row.EntryCount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !created {
		stored, err := s.repo.Find(ctx, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload daily report")
		}
		return s.resume(ctx, stored)
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     enums.AuditActionDailyReportGenerated,
		EntityType: enums.AuditEntityDailyReport,
		EntityID:   key,
		NewValues: map[string]any{
			"total_debits":      row.TotalDebits.StringFixed(2),
			"total_credits":     row.TotalCredits.StringFixed(2),
			"entry_count":       row.EntryCount,
			"transaction_count": row.TransactionCount,
			"alert_count":       row.AlertCount,
			"ctr_count":         row.CTRCount,
			"str_count":         row.STRCount,
		},
	})
	if s.logg != nil {
		s.logg.Info(ctx, "daily report generated")
	}
	s.export(ctx, row)
	return row, nil
}

func (s *Service) resume(ctx context.Context, row *models.LedgerDailyReport) (*models.LedgerDailyReport, error) {
	if row.Status == enums.DailyReportIntegrityViolation {
		return row, pkgerrors.New(pkgerrors.CodeIntegrityViolation, "ledger daily totals do not balance").
			WithDetails(map[string]any{"report_date": row.ReportDate})
	}
	if row.ExportedAt == nil {
		s.export(ctx, row)
	}
	return row, nil
}

func (s *Service) recordViolation(ctx context.Context, key string, summary *ledger.DailySummary, cause error) (*models.LedgerDailyReport, error) {
	row := newReportRow(key, summary, enums.DailyReportIntegrityViolation, s.now().UTC())
	inserted, err := s.repo.CreateIfAbsent(ctx, row)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "persist failed daily report", err)
		}
		return nil, cause
	}
	if !inserted {
		return row, cause
	}

	details := map[string]any{
		"total_debits":  summary.TotalDebits.StringFixed(2),
		"total_credits": summary.TotalCredits.StringFixed(2),
		"difference":    summary.TotalDebits.Sub(summary.TotalCredits).StringFixed(2),
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     enums.AuditActionIntegrityViolation,
		EntityType: enums.AuditEntityDailyReport,
		EntityID:   key,
		NewValues:  details,
	})
	s.notifier.Notify(ctx, notifications.Notification{
		Recipient: s.recipient,
		Title:     "Ledger integrity violation",
		Body:      fmt.Sprintf("Debits %s and credits %s do not balance for %s.", details["total_debits"], details["total_credits"], key),
		Data: map[string]string{
			"report_date": key,
			"difference":  details["difference"].(string),
		},
	})
	return row, cause
}

// export failures leave exported_at empty so the next run retries.
func (s *Service) export(ctx context.Context, row *models.LedgerDailyReport) {
	if s.exporter == nil || row.Status != enums.DailyReportCompleted {
		return
	}
	if err := s.exporter.InsertRows(ctx, s.table, []any{newExportRow(row, s.currency)}); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "export daily report", err)
		}
		return
	}
	at := s.now().UTC()
	if err := s.repo.MarkExported(ctx, row.ReportDate, at); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "mark daily report exported", err)
		}
		return
	}
	row.ExportedAt = &at
}

// reportAggregateID gives each report date a stable outbox aggregate id.
func reportAggregateID(key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("walletcore:ledger_daily_report:"+key))
}

func newReportRow(key string, summary *ledger.DailySummary, status enums.DailyReportStatus, now time.Time) *models.LedgerDailyReport {
	return &models.LedgerDailyReport{
		ReportDate:       key,
		TotalDebits:      summary.TotalDebits,
		TotalCredits:     summary.TotalCredits,
		EntryCount:       summary.EntryCount,
		TransactionCount: summary.TransactionCount,
		Status:           status,
		CreatedAt:        now,
	}
}
