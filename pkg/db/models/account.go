package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Account holds a monetary balance. Balances change only through the ledger.
type Account struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID         *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	Type           enums.AccountType   `gorm:"column:type;type:account_type;not null"`
	Balance        decimal.Decimal     `gorm:"column:balance;type:numeric(20,2);not null;default:0"`
	Currency       string              `gorm:"column:currency;type:char(3);not null"`
	Status         enums.AccountStatus `gorm:"column:status;type:account_status;not null;default:'active'"`
	LastActivityAt *time.Time          `gorm:"column:last_activity_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsActive reports whether the account may send or receive money.
func (a Account) IsActive() bool {
	return a.Status == enums.AccountStatusActive
}
