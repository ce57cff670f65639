package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LimitSpend records that one transaction's amount was counted against a
// user's limits. The reference is unique, so a spend is counted at most once.
type LimitSpend struct {
	TransactionRef string          `gorm:"column:transaction_ref;primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (LimitSpend) TableName() string { return "limit_spends" }
