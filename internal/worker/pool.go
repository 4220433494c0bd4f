package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chainsentry/audit-be/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			err := w.processRecord(ctx, msg)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("record_id", msg.RecordID),
				)
				continue
			}

			if err != nil {
				w.logger.Error("Record processing failed",
					slog.String("worker_name", workerName),
					slog.String("record_id", msg.RecordID),
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)

				requeue := shouldRequeue(err)
				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("record_id", msg.RecordID),
						slog.String("error", nackErr.Error()),
					)
				} else {
					w.logger.Info("Message NACKed",
						slog.String("record_id", msg.RecordID),
						slog.Bool("requeue", requeue),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("record_id", msg.RecordID),
					slog.String("error", ackErr.Error()),
				)
			} else {
				w.logger.Info("Record processed successfully",
					slog.String("worker_name", workerName),
					slog.String("record_id", msg.RecordID),
					slog.String("job_id", msg.JobID),
				)
			}
		}
	}
}

// shouldRequeue decides the NACK requeue flag from the error type. Only
// transient errors wrapped as RetryableError go back on the queue; a record
// that exhausts its retry gets dropped and its job stays PENDING for an
// operator to notice.
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, domain.ErrInvalidMessage) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
