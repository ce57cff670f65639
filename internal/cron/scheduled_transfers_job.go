package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

const defaultScheduledBatch = 100

type dueTransferRunner interface {
	RunDue(ctx context.Context, limit int) (int, error)
}

type ScheduledTransfersJobParams struct {
	Logger    *logger.Logger
	Transfers dueTransferRunner
	BatchSize int
}

// NewScheduledTransfersJob executes scheduled transfers that have come due.
func NewScheduledTransfersJob(params ScheduledTransfersJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Transfers == nil {
		return nil, fmt.Errorf("transfers service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultScheduledBatch
	}
	return &scheduledTransfersJob{logg: params.Logger, transfers: params.Transfers, batch: batch}, nil
}

type scheduledTransfersJob struct {
	logg      *logger.Logger
	transfers dueTransferRunner
	batch     int
}

func (j *scheduledTransfersJob) Name() string { return "scheduled-transfers" }

func (j *scheduledTransfersJob) Run(ctx context.Context) error {
	executed, err := j.transfers.RunDue(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"executed":   executed,
		"batch_size": j.batch,
	})
	if err != nil {
		return fmt.Errorf("scheduled transfers: %w", err)
	}
	if executed > 0 {
		j.logg.Info(logCtx, "scheduled transfers executed")
	}
	return nil
}
