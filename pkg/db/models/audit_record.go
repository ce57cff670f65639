package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// AuditRecord is an append-only entry in the audit trail.
type AuditRecord struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID        *uuid.UUID            `gorm:"column:user_id;type:uuid"`
	Action        enums.AuditAction     `gorm:"column:action;not null"`
	EntityType    enums.AuditEntityType `gorm:"column:entity_type;not null"`
	EntityID      string                `gorm:"column:entity_id;not null"`
	OldValues     json.RawMessage       `gorm:"column:old_values;type:jsonb"`
	NewValues     json.RawMessage       `gorm:"column:new_values;type:jsonb"`
	IPAddress     *string               `gorm:"column:ip_address"`
	IntegrityHash string                `gorm:"column:integrity_hash;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at"`
}
