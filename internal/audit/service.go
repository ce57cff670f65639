package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
)

// Event describes a state change to append to the audit trail.
type Event struct {
	UserID     *uuid.UUID
	Action     enums.AuditAction
	EntityType enums.AuditEntityType
	EntityID   string
	OldValues  any
	NewValues  any
	IPAddress  string
}

// Recorder appends audit events. Record never fails the caller's operation.
type Recorder interface {
	Record(ctx context.Context, event Event) uuid.UUID
}

// Service is the audit trail writer.
type Service struct {
	repo    Repository
	hash    hasher
	logg    *logger.Logger
	metrics *metrics.AuditMetrics
	now     func() time.Time
}

// ServiceParams wires the audit trail.
type ServiceParams struct {
	Repository   Repository
	IntegrityKey string
	Logger       *logger.Logger
	Metrics      *metrics.AuditMetrics
	Now          func() time.Time
}

// NewService validates params and returns the audit writer.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, errors.New("audit repository required")
	}
	if strings.TrimSpace(params.IntegrityKey) == "" {
		return nil, errors.New("audit integrity key required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    params.Repository,
		hash:    newHasher([]byte(params.IntegrityKey)),
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Record sanitizes and persists event. On failure it logs, counts the drop and
// returns uuid.Nil.
func (s *Service) Record(ctx context.Context, event Event) uuid.UUID {
	record, err := s.build(event)
	if err == nil {
		err = s.repo.Create(ctx, record)
	}
	if err != nil {
		s.metrics.IncWriteFailure()
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"audit_action": string(event.Action),
				"entity_type":  string(event.EntityType),
				"entity_id":    event.EntityID,
			})
			s.logg.Error(logCtx, "audit record dropped", err)
		}
		return uuid.Nil
	}
	return record.ID
}

// Verify reports whether record's integrity hash matches its identifying fields.
func (s *Service) Verify(record models.AuditRecord) bool {
	return s.hash.verify(record)
}

func (s *Service) build(event Event) (*models.AuditRecord, error) {
	if event.Action == "" || event.EntityType == "" || strings.TrimSpace(event.EntityID) == "" {
		return nil, errors.New("audit action, entity type and entity id are required")
	}
	oldValues, err := sanitize(event.OldValues)
	if err != nil {
		return nil, err
	}
	newValues, err := sanitize(event.NewValues)
	if err != nil {
		return nil, err
	}
	record := &models.AuditRecord{
		ID:            uuid.New(),
		UserID:        event.UserID,
		Action:        event.Action,
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		OldValues:     oldValues,
		NewValues:     newValues,
		IntegrityHash: s.hash.sum(event.UserID, event.Action, event.EntityType, event.EntityID),
		CreatedAt:     s.now().UTC(),
	}
	if ip := strings.TrimSpace(event.IPAddress); ip != "" {
		record.IPAddress = &ip
	}
	return record, nil
}
