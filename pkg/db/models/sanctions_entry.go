package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SanctionsEntry is one name on a sanctions or proscribed-persons list.
type SanctionsEntry struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	FullName   string         `gorm:"column:full_name;not null"`
	Aliases    pq.StringArray `gorm:"column:aliases;type:text[]"`
	SourceList string         `gorm:"column:source_list;not null"`
	Country    *string        `gorm:"column:country"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}
