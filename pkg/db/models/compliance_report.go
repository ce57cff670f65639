package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/walletcore-backend/pkg/db/types"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// ComplianceReport is a CTR or STR artifact awaiting filing.
type ComplianceReport struct {
	ID             uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	ReportType     enums.ComplianceReportType   `gorm:"column:report_type;type:compliance_report_type;not null"`
	TransactionRef string                       `gorm:"column:transaction_ref;not null"`
	UserID         uuid.UUID                    `gorm:"column:user_id;type:uuid;not null"`
	Amount         decimal.Decimal              `gorm:"column:amount;type:numeric(20,2);not null"`
	Currency       string                       `gorm:"column:currency;type:char(3);not null"`
	AlertIDs       dbtypes.UUIDArray            `gorm:"column:alert_ids;type:uuid[]"`
	Narrative      string                       `gorm:"column:narrative"`
	Status         enums.ComplianceReportStatus `gorm:"column:status;type:compliance_report_status;not null"`
	CreatedAt      time.Time                    `gorm:"column:created_at"`
}

// TransactionBlock records a transaction halted by monitoring.
type TransactionBlock struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TransactionRef string            `gorm:"column:transaction_ref;not null;uniqueIndex"`
	UserID         uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	AlertIDs       dbtypes.UUIDArray `gorm:"column:alert_ids;type:uuid[]"`
	PublicStatus   string            `gorm:"column:public_status;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
}
