package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// LedgerEntry is one immutable debit or credit against a single account.
type LedgerEntry struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TransactionRef string          `gorm:"column:transaction_ref;not null"`
	AccountID      uuid.UUID       `gorm:"column:account_id;type:uuid;not null"`
	EntryType      enums.EntryType `gorm:"column:entry_type;type:entry_type;not null"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	BalanceAfter   decimal.Decimal `gorm:"column:balance_after;type:numeric(20,2);not null"`
	Currency       string          `gorm:"column:currency;type:char(3);not null"`
	Metadata       json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}
