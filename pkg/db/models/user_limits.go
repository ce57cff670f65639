package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// UserLimits tracks the KYC tier ceilings and rolling spend counters of a user.
type UserLimits struct {
	UserID              uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey"`
	KYCLevel            enums.KYCLevel  `gorm:"column:kyc_level;not null;default:0"`
	PerTransactionLimit decimal.Decimal `gorm:"column:per_transaction_limit;type:numeric(20,2);not null"`
	DailyLimit          decimal.Decimal `gorm:"column:daily_limit;type:numeric(20,2);not null"`
	MonthlyLimit        decimal.Decimal `gorm:"column:monthly_limit;type:numeric(20,2);not null"`
	DailySpent          decimal.Decimal `gorm:"column:daily_spent;type:numeric(20,2);not null;default:0"`
	MonthlySpent        decimal.Decimal `gorm:"column:monthly_spent;type:numeric(20,2);not null;default:0"`
	DailyResetAt        time.Time       `gorm:"column:daily_reset_at;not null"`
	MonthlyResetAt      time.Time       `gorm:"column:monthly_reset_at;not null"`
	LastTransactionRef  *string         `gorm:"column:last_transaction_ref"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserLimits) TableName() string { return "user_limits" }
