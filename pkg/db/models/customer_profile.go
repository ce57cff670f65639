package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CustomerProfile carries the screening attributes of an account holder.
type CustomerProfile struct {
	UserID     uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey"`
	FullName   string         `gorm:"column:full_name;not null"`
	Country    string         `gorm:"column:country;type:char(2)"`
	IsPEP      bool           `gorm:"column:is_pep;not null;default:false"`
	RiskFlags  pq.StringArray `gorm:"column:risk_flags;type:text[]"`
	VerifiedAt *time.Time     `gorm:"column:verified_at"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
