package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anlz "github.com/chainsentry/audit-be/internal/analyzer"
	"github.com/chainsentry/audit-be/internal/worker/domain"
)

// processRecord drives one work event through the four processing steps:
// fetch the record, analyze its source, save the result, check whether the
// job just finished. Steps 3 and 4 are idempotent, so a redelivered event
// re-running them cannot corrupt state.
func (w *Worker) processRecord(ctx context.Context, msg *domain.AuditMessage) error {
	w.logger.Info("Processing audit record",
		slog.String("record_id", msg.RecordID),
		slog.String("job_id", msg.JobID),
		slog.String("mode", msg.Mode),
		slog.Bool("redelivered", msg.Redelivered),
	)

	// Step 1: fetch. A missing record is fatal for this event.
	record, err := w.storage.GetRecord(ctx, msg.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return fmt.Errorf("record %s: %w", msg.RecordID, err)
		}
		return w.retryable(msg, fmt.Errorf("failed to fetch record %s: %w", msg.RecordID, err))
	}

	if record.Status == domain.RecordStatusDone {
		// redelivery of an already-finished record; re-check completion only
		w.logger.Info("Record already done, re-checking job completion",
			slog.String("record_id", msg.RecordID),
		)
		return w.checkCompletion(ctx, msg)
	}

	// Step 2: analyze. Stateless per record, so a retried call just costs an
	// extra external request.
	analyzeCtx := ctx
	if w.analyzeTimeout > 0 {
		var cancel context.CancelFunc
		analyzeCtx, cancel = context.WithTimeout(ctx, w.analyzeTimeout)
		defer cancel()
	}

	result, err := w.analyzer.Analyze(analyzeCtx, msg.Mode, record.SourceCode)
	if err != nil {
		var statusErr *anlz.StatusError
		if errors.As(err, &statusErr) {
			w.logger.Error("Analyzer rejected record",
				slog.String("record_id", msg.RecordID),
				slog.Int("status", statusErr.Code),
				slog.String("detail", statusErr.Body),
			)
		}
		return w.retryable(msg, fmt.Errorf("failed to analyze record %s: %w", msg.RecordID, err))
	}

	// Step 3: save result and mark DONE in one write
	if err := w.storage.SaveRecordResult(ctx, msg.RecordID, result); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return fmt.Errorf("record %s vanished before save: %w", msg.RecordID, err)
		}
		return w.retryable(msg, fmt.Errorf("failed to save result for record %s: %w", msg.RecordID, err))
	}

	// Step 4: completion check
	return w.checkCompletion(ctx, msg)
}

// checkCompletion recomputes job completion from record state. Concurrent
// finishers may all observe zero pending; MarkJobCompleted absorbs the race.
func (w *Worker) checkCompletion(ctx context.Context, msg *domain.AuditMessage) error {
	pending, err := w.storage.CountPendingRecords(ctx, msg.JobID)
	if err != nil {
		return w.retryable(msg, fmt.Errorf("failed to count pending records for job %s: %w", msg.JobID, err))
	}

	if pending > 0 {
		w.logger.Debug("Job still has pending records",
			slog.String("job_id", msg.JobID),
			slog.Int("pending", pending),
		)
		return nil
	}

	if err := w.storage.MarkJobCompleted(ctx, msg.JobID); err != nil {
		return w.retryable(msg, fmt.Errorf("failed to complete job %s: %w", msg.JobID, err))
	}

	return nil
}

// retryable wraps transient errors for requeue on first delivery; a
// redelivered event fails hard to keep a poisoned record from cycling forever
func (w *Worker) retryable(msg *domain.AuditMessage, err error) error {
	if msg.Redelivered {
		return err
	}
	return domain.NewRetryableError(err)
}
