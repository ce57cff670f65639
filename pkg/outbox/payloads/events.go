package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// NotificationRequestedEvent asks the delivery service to notify a user or role.
type NotificationRequestedEvent struct {
	Recipient string            `json:"recipient" validate:"required"`
	Title     string            `json:"title" validate:"required"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}

// TransactionCompletedEvent is emitted once a ledger transaction settles.
type TransactionCompletedEvent struct {
	Reference            string                `json:"reference" validate:"required"`
	Type                 enums.TransactionType `json:"type" validate:"required"`
	Amount               decimal.Decimal       `json:"amount"`
	Currency             string                `json:"currency" validate:"required,len=3"`
	SourceAccountID      *uuid.UUID            `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID            `json:"destination_account_id,omitempty"`
	CompletedAt          time.Time             `json:"completed_at"`
}

// TransactionBlockedEvent carries the compliance view of a blocked transaction.
type TransactionBlockedEvent struct {
	Reference string            `json:"reference" validate:"required"`
	UserID    uuid.UUID         `json:"user_id" validate:"required"`
	Amount    decimal.Decimal   `json:"amount"`
	AlertIDs  []uuid.UUID       `json:"alert_ids" validate:"required,min=1"`
	Types     []enums.AlertType `json:"alert_types"`
}

// DailyReportCompletedEvent announces a finished ledger daily report.
type DailyReportCompletedEvent struct {
	ReportDate   string                  `json:"report_date" validate:"required,datetime=2006-01-02"`
	Status       enums.DailyReportStatus `json:"status" validate:"required"`
	TotalDebits  decimal.Decimal         `json:"total_debits"`
	TotalCredits decimal.Decimal         `json:"total_credits"`
	EntryCount   int64                   `json:"entry_count"`
}
