package reports

import (
	"context"
	"math/big"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

// RowInserter streams rows into an analytics table.
type RowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// exportRow is the BigQuery shape of a daily report. NUMERIC columns map
// from *big.Rat.
type exportRow struct {
	ReportDate       string    `bigquery:"report_date"`
	Status           string    `bigquery:"status"`
	Currency         string    `bigquery:"currency"`
	TotalDebits      *big.Rat  `bigquery:"total_debits"`
	TotalCredits     *big.Rat  `bigquery:"total_credits"`
	EntryCount       int64     `bigquery:"entry_count"`
	TransactionCount int64     `bigquery:"transaction_count"`
	AlertCount       int64     `bigquery:"alert_count"`
	CTRCount         int64     `bigquery:"ctr_count"`
	STRCount         int64     `bigquery:"str_count"`
	GeneratedAt      time.Time `bigquery:"generated_at"`
}

func newExportRow(row *models.LedgerDailyReport, currency string) *exportRow {
	return &exportRow{
		ReportDate:       row.ReportDate,
		Status:           string(row.Status),
		Currency:         currency,
		TotalDebits:      row.TotalDebits.Rat(),
		TotalCredits:     row.TotalCredits.Rat(),
		EntryCount:       row.EntryCount,
		TransactionCount: row.TransactionCount,
		AlertCount:       row.AlertCount,
		CTRCount:         row.CTRCount,
		STRCount:         row.STRCount,
		GeneratedAt:      row.CreatedAt.UTC(),
	}
}
