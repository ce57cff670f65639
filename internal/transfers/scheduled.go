package transfers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

const (
	defaultDueBatch     = 100
	defaultMaxAttempts  = 5
	defaultRetryBackoff = time.Minute
	defaultClaimLease   = 15 * time.Minute
	maxRetryBackoff     = time.Hour
)

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// backoff doubles per attempt, capped at maxRetryBackoff.
func (s *Service) backoff(attempts int) time.Duration {
	wait := s.retryBackoff
	for i := 1; i < attempts && wait < maxRetryBackoff; i++ {
		wait *= 2
	}
	return min(wait, maxRetryBackoff)
}

// Schedule stores a pending transfer. Limits and monitoring run when it
// executes, not now.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*models.ScheduledTransfer, error) {
	req.normalize()
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination must differ")
	}
	now := s.now().UTC()
	if !req.ExecuteAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "execute_at must be in the future")
	}
	if err := s.requireOwner(ctx, req.UserID, req.FromAccountID); err != nil {
		return nil, err
	}

	row := &models.ScheduledTransfer{
		ID:                  uuid.New(),
		UserID:              req.UserID,
		FromAccountID:       req.FromAccountID,
		ToAccountID:         req.ToAccountID,
		Amount:              req.Amount,
		CounterpartyName:    req.CounterpartyName,
		CounterpartyCountry: req.CounterpartyCountry,
		Note:                req.Note,
		ExecuteAt:           req.ExecuteAt.UTC(),
		Status:              enums.ScheduledTransferPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create scheduled transfer")
	}
	return row, nil
}

// Cancel withdraws a pending scheduled transfer owned by userID.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	ok, err := s.repo.Cancel(ctx, id, userID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel scheduled transfer")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "scheduled transfer is not pending")
	}
	return nil
}

// ExecuteDue runs one scheduled transfer if it is due and still pending.
// A row that another run already claimed, or that is terminal, is returned
// unchanged. A retryable failure leaves the row pending with a backed-off
// next attempt until the attempt budget is spent.
func (s *Service) ExecuteDue(ctx context.Context, id uuid.UUID) (*models.ScheduledTransfer, error) {
	row, _, err := s.execute(ctx, id)
	return row, err
}

func (s *Service) execute(ctx context.Context, id uuid.UUID) (*models.ScheduledTransfer, bool, error) {
	now := s.now().UTC()
	claimed, err := s.repo.Claim(ctx, id, now, now.Add(-s.claimLease))
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim scheduled transfer")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "scheduled transfer not found")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load scheduled transfer")
	}
	if !claimed {
		return row, false, nil
	}

	receipt, runErr := s.Transfer(ctx, TransferRequest{
		UserID:              row.UserID,
		FromAccountID:       row.FromAccountID,
		ToAccountID:         row.ToAccountID,
		Amount:              row.Amount,
		CounterpartyName:    row.CounterpartyName,
		CounterpartyCountry: row.CounterpartyCountry,
		Note:                row.Note,
	})

	if runErr != nil && pkgerrors.IsRetryable(runErr) && row.Attempts < s.maxAttempts {
		return s.reschedule(ctx, row, runErr)
	}

	outcome := Outcome{Status: enums.ScheduledTransferCompleted, At: s.now().UTC()}
	if runErr != nil {
		outcome.Status = enums.ScheduledTransferFailed
		outcome.FailureReason = string(pkgerrors.CodeOf(runErr))
		if typed := pkgerrors.As(runErr); typed != nil {
			if details, ok := typed.Details().(map[string]any); ok {
				if ref, ok := details["reference"].(string); ok {
					outcome.TransactionRef = ref
				}
			}
		}
	} else {
		outcome.TransactionRef = receipt.Reference
	}

	if err := s.repo.Finish(ctx, id, outcome); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "scheduled_transfer_id", id.String()), "finish scheduled transfer", err)
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finish scheduled transfer")
	}

	userID := row.UserID
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionScheduledTransferRun,
		EntityType: enums.AuditEntityScheduledTransfer,
		EntityID:   id.String(),
		OldValues:  map[string]any{"status": string(enums.ScheduledTransferPending)},
		NewValues: map[string]any{
			"status":          string(outcome.Status),
			"transaction_ref": outcome.TransactionRef,
			"failure_reason":  outcome.FailureReason,
		},
	})

	row.Status = outcome.Status
	executedAt := outcome.At
	row.ExecutedAt = &executedAt
	row.UpdatedAt = outcome.At
	if outcome.TransactionRef != "" {
		ref := outcome.TransactionRef
		row.TransactionRef = &ref
	}
	if outcome.FailureReason != "" {
		reason := outcome.FailureReason
		row.FailureReason = &reason
	}
	return row, true, nil
}

func (s *Service) reschedule(ctx context.Context, row *models.ScheduledTransfer, runErr error) (*models.ScheduledTransfer, bool, error) {
	at := s.now().UTC()
	retry := Retry{
		Reason:        string(pkgerrors.CodeOf(runErr)),
		NextAttemptAt: at.Add(s.backoff(row.Attempts)),
		At:            at,
	}
	if err := s.repo.Reschedule(ctx, row.ID, retry); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reschedule scheduled transfer")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"scheduled_transfer_id": row.ID.String(),
			"attempts":              row.Attempts,
			"next_attempt_at":       retry.NextAttemptAt,
		})
		s.logg.Warn(logCtx, "scheduled transfer deferred after retryable failure")
	}

	row.Status = enums.ScheduledTransferPending
	row.FailureReason = &retry.Reason
	row.NextAttemptAt = &retry.NextAttemptAt
	row.UpdatedAt = at
	return row, false, nil
}

// RunDue executes up to limit due transfers and returns how many this run
// claimed and finished.
func (s *Service) RunDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultDueBatch
	}
	now := s.now().UTC()
	ids, err := s.repo.ListDue(ctx, now, now.Add(-s.claimLease), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due transfers")
	}
	executed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		_, ran, err := s.execute(ctx, id)
		if err != nil {
			return executed, err
		}
		if ran {
			executed++
		}
	}
	return executed, nil
}
