package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// MonitoringAlert is raised by the monitoring pipeline for a flagged transaction.
type MonitoringAlert struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Type           enums.AlertType     `gorm:"column:type;type:alert_type;not null"`
	Severity       enums.AlertSeverity `gorm:"column:severity;type:alert_severity;not null"`
	Description    string              `gorm:"column:description;not null"`
	TransactionRef string              `gorm:"column:transaction_ref;not null"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Status         enums.AlertStatus   `gorm:"column:status;type:alert_status;not null"`
	Details        json.RawMessage     `gorm:"column:details;type:jsonb"`
	CreatedAt      time.Time           `gorm:"column:created_at"`
}
