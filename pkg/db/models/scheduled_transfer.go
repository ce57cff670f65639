package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// ScheduledTransfer is a transfer queued for execution at a future time.
type ScheduledTransfer struct {
	ID                  uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	UserID              uuid.UUID                     `gorm:"column:user_id;type:uuid;not null"`
	FromAccountID       uuid.UUID                     `gorm:"column:from_account_id;type:uuid;not null"`
	ToAccountID         uuid.UUID                     `gorm:"column:to_account_id;type:uuid;not null"`
	Amount              decimal.Decimal               `gorm:"column:amount;type:numeric(20,2);not null"`
	CounterpartyName    string                        `gorm:"column:counterparty_name"`
	CounterpartyCountry string                        `gorm:"column:counterparty_country"`
	Note                string                        `gorm:"column:note"`
	ExecuteAt           time.Time                     `gorm:"column:execute_at;not null"`
	Status              enums.ScheduledTransferStatus `gorm:"column:status;type:scheduled_transfer_status;not null"`
	TransactionRef      *string                       `gorm:"column:transaction_ref"`
	FailureReason       *string                       `gorm:"column:failure_reason"`
	ExecutedAt          *time.Time                    `gorm:"column:executed_at"`
	Attempts            int                           `gorm:"column:attempts;not null;default:0"`
	NextAttemptAt       *time.Time                    `gorm:"column:next_attempt_at"`
	CreatedAt           time.Time                     `gorm:"column:created_at"`
	UpdatedAt           time.Time                     `gorm:"column:updated_at"`
}
