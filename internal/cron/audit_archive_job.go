package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

type auditArchiver interface {
	Archive(ctx context.Context, now time.Time) (int, error)
}

type AuditArchiveJobParams struct {
	Logger   *logger.Logger
	Archiver auditArchiver
}

// NewAuditArchiveJob moves audit records past retention to cold storage.
func NewAuditArchiveJob(params AuditArchiveJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Archiver == nil {
		return nil, fmt.Errorf("audit archiver required")
	}
	return &auditArchiveJob{logg: params.Logger, archiver: params.Archiver, now: time.Now}, nil
}

type auditArchiveJob struct {
	logg     *logger.Logger
	archiver auditArchiver
	now      func() time.Time
}

func (j *auditArchiveJob) Name() string { return "audit-archive" }

func (j *auditArchiveJob) Run(ctx context.Context) error {
	archived, err := j.archiver.Archive(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("audit archive: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "records_archived", archived), "audit archive complete")
	return nil
}
