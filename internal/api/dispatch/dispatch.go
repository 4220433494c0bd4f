package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Event is the payload published for each record; the worker service consumes
// exactly one event per record.
type Event struct {
	RecordID string `json:"record_id"`
	JobID    string `json:"job_id"`
	Mode     string `json:"mode"`
}

// Publisher abstracts the message broker's durable publish
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dispatcher fans a persisted job out into per-record work events
type Dispatcher struct {
	logger    *slog.Logger
	publisher Publisher
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(publisher Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:    logger,
		publisher: publisher,
	}
}

// DispatchRecords publishes one event per record id. The first publish failure
// aborts and is returned to the caller; records already persisted stay in the
// store with no event delivered (an accepted inconsistency the caller reports
// as a submission failure).
func (d *Dispatcher) DispatchRecords(ctx context.Context, jobID, mode string, recordIDs []string) error {
	for _, recordID := range recordIDs {
		event := Event{
			RecordID: recordID,
			JobID:    jobID,
			Mode:     mode,
		}

		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event for record %s: %w", recordID, err)
		}

		if err := d.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
			return fmt.Errorf("failed to publish event for record %s: %w", recordID, err)
		}
	}

	d.logger.Info("Work events dispatched",
		slog.String("job_id", jobID),
		slog.String("mode", mode),
		slog.Int("events", len(recordIDs)),
	)

	return nil
}
