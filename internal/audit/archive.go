package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
)

const (
	defaultRetentionYears   = 5
	defaultArchiveBatchSize = 500
	archiveContentType      = "application/x-ndjson"
)

// ObjectStore is the cold storage the archiver writes to.
type ObjectStore interface {
	ObjectName(parts ...string) string
	UploadObject(ctx context.Context, name, contentType string, body io.Reader) error
}

// Archiver moves audit records past retention into cold storage.
type Archiver struct {
	repo           Repository
	store          ObjectStore
	logg           *logger.Logger
	metrics        *metrics.AuditMetrics
	retentionYears int
	batchSize      int
	maxBatches     int
}

// ArchiverParams wires an Archiver.
type ArchiverParams struct {
	Repository     Repository
	Store          ObjectStore
	Logger         *logger.Logger
	Metrics        *metrics.AuditMetrics
	RetentionYears int
	BatchSize      int
	// MaxBatches bounds one run; zero means run until no eligible rows remain.
	MaxBatches int
}

// NewArchiver validates params.
func NewArchiver(params ArchiverParams) (*Archiver, error) {
	if params.Repository == nil {
		return nil, errors.New("audit repository required")
	}
	if params.Store == nil {
		return nil, errors.New("archive store required")
	}
	retention := params.RetentionYears
	if retention <= 0 {
		retention = defaultRetentionYears
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultArchiveBatchSize
	}
	return &Archiver{
		repo:           params.Repository,
		store:          params.Store,
		logg:           params.Logger,
		metrics:        params.Metrics,
		retentionYears: retention,
		batchSize:      batch,
		maxBatches:     params.MaxBatches,
	}, nil
}

// Cutoff returns the instant before which records are archived.
func (a *Archiver) Cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(-a.retentionYears, 0, 0)
}

// Archive uploads eligible records batch by batch. Rows are deleted only after
// their batch is stored; a failed upload leaves them in place for the next run.
func (a *Archiver) Archive(ctx context.Context, now time.Time) (int, error) {
	cutoff := a.Cutoff(now)
	total := 0
	for batchNo := 0; a.maxBatches <= 0 || batchNo < a.maxBatches; batchNo++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := a.repo.ListOlderThan(ctx, cutoff, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("list audit records: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		name := a.objectName(rows)
		body, ids, err := encodeBatch(rows)
		if err != nil {
			return total, err
		}
		if err := a.store.UploadObject(ctx, name, archiveContentType, bytes.NewReader(body)); err != nil {
			return total, fmt.Errorf("upload audit batch: %w", err)
		}
		deleted, err := a.repo.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("delete archived audit records: %w", err)
		}
		total += int(deleted)
		a.metrics.AddArchived(int(deleted))
		if a.logg != nil {
			a.logg.Info(a.logg.WithFields(ctx, map[string]any{
				"object":  name,
				"records": deleted,
			}), "audit batch archived")
		}
		if len(rows) < a.batchSize {
			break
		}
	}
	return total, nil
}

func (a *Archiver) objectName(rows []models.AuditRecord) string {
	first := rows[0]
	return a.store.ObjectName(
		first.CreatedAt.UTC().Format("2006/01/02"),
		fmt.Sprintf("%s-%s.jsonl", first.CreatedAt.UTC().Format("150405"), first.ID.String()),
	)
}

type archivedRecord struct {
	ID            uuid.UUID       `json:"id"`
	UserID        *uuid.UUID      `json:"user_id,omitempty"`
	Action        string          `json:"action"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	OldValues     json.RawMessage `json:"old_values,omitempty"`
	NewValues     json.RawMessage `json:"new_values,omitempty"`
	IPAddress     *string         `json:"ip_address,omitempty"`
	IntegrityHash string          `json:"integrity_hash"`
	CreatedAt     time.Time       `json:"created_at"`
}

func encodeBatch(rows []models.AuditRecord) ([]byte, []uuid.UUID, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if err := enc.Encode(archivedRecord{
			ID:            row.ID,
			UserID:        row.UserID,
			Action:        string(row.Action),
			EntityType:    string(row.EntityType),
			EntityID:      row.EntityID,
			OldValues:     row.OldValues,
			NewValues:     row.NewValues,
			IPAddress:     row.IPAddress,
			IntegrityHash: row.IntegrityHash,
			CreatedAt:     row.CreatedAt.UTC(),
		}); err != nil {
			return nil, nil, fmt.Errorf("encode audit record %s: %w", row.ID, err)
		}
		ids = append(ids, row.ID)
	}
	return buf.Bytes(), ids, nil
}
