package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

const defaultReportCatchUpDays = 3

type dailyReporter interface {
	Yesterday() time.Time
	Generate(ctx context.Context, date time.Time) (*models.LedgerDailyReport, error)
}

type DailyReportJobParams struct {
	Logger  *logger.Logger
	Reports dailyReporter
	// CatchUpDays is how many closed days, ending yesterday, each run makes
	// sure have a report.
	CatchUpDays int
}

func NewDailyReportJob(params DailyReportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reports == nil {
		return nil, fmt.Errorf("reports service required")
	}
	days := params.CatchUpDays
	if days <= 0 {
		days = defaultReportCatchUpDays
	}
	return &dailyReportJob{logg: params.Logger, reports: params.Reports, days: days}, nil
}

type dailyReportJob struct {
	logg    *logger.Logger
	reports dailyReporter
	days    int
}

func (j *dailyReportJob) Name() string { return "ledger-daily-report" }

// Run walks the catch-up window oldest first. Generation is idempotent per
// date, so already reported days cost one lookup.
func (j *dailyReportJob) Run(ctx context.Context) error {
	yesterday := j.reports.Yesterday()
	var errs error
	for offset := j.days - 1; offset >= 0; offset-- {
		date := yesterday.AddDate(0, 0, -offset)
		if _, err := j.reports.Generate(ctx, date); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("report %s: %w", date.Format("2006-01-02"), err))
		}
	}
	if errs != nil {
		return errs
	}
	j.logg.Info(j.logg.WithField(ctx, "through", yesterday.Format("2006-01-02")), "daily reports up to date")
	return nil
}
