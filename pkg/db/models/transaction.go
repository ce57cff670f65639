package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Transaction groups the ledger entries written under one reference.
type Transaction struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Reference            string                  `gorm:"column:reference;not null;uniqueIndex"`
	Type                 enums.TransactionType   `gorm:"column:type;type:transaction_type;not null"`
	Status               enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:numeric(20,2);not null"`
	Currency             string                  `gorm:"column:currency;type:char(3);not null"`
	InitiatorUserID      *uuid.UUID              `gorm:"column:initiator_user_id;type:uuid"`
	SourceAccountID      *uuid.UUID              `gorm:"column:source_account_id;type:uuid"`
	DestinationAccountID *uuid.UUID              `gorm:"column:destination_account_id;type:uuid"`
	ReversalOf           *string                 `gorm:"column:reversal_of"`
	Metadata             json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time               `gorm:"column:created_at"`
	CompletedAt          *time.Time              `gorm:"column:completed_at"`
	ReversedAt           *time.Time              `gorm:"column:reversed_at"`
}
