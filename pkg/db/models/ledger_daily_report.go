package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// LedgerDailyReport is the persisted summary of one business day.
type LedgerDailyReport struct {
	ReportDate       string                  `gorm:"column:report_date;primaryKey"`
	TotalDebits      decimal.Decimal         `gorm:"column:total_debits;type:numeric(20,2);not null"`
	TotalCredits     decimal.Decimal         `gorm:"column:total_credits;type:numeric(20,2);not null"`
	EntryCount       int64                   `gorm:"column:entry_count;not null"`
	TransactionCount int64                   `gorm:"column:transaction_count;not null"`
	AlertCount       int64                   `gorm:"column:alert_count;not null"`
	CTRCount         int64                   `gorm:"column:ctr_count;not null"`
	STRCount         int64                   `gorm:"column:str_count;not null"`
	Status           enums.DailyReportStatus `gorm:"column:status;type:daily_report_status;not null"`
	ExportedAt       *time.Time              `gorm:"column:exported_at"`
	CreatedAt        time.Time               `gorm:"column:created_at"`
}

func (LedgerDailyReport) TableName() string { return "ledger_daily_reports" }
