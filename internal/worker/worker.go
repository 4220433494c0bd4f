package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainsentry/audit-be/internal/worker/domain"
	"github.com/chainsentry/audit-be/shared/rabbitmq"
)

// Store is the persistence surface the worker needs
type Store interface {
	GetRecord(ctx context.Context, recordID string) (*domain.Record, error)
	SaveRecordResult(ctx context.Context, recordID string, result json.RawMessage) error
	CountPendingRecords(ctx context.Context, jobID string) (int, error)
	MarkJobCompleted(ctx context.Context, jobID string) error
}

// Analyzer submits one contract source to the external analysis service
type Analyzer interface {
	Analyze(ctx context.Context, mode string, sourceCode string) (json.RawMessage, error)
}

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	Storage        Store
	Analyzer       Analyzer
	RabbitClient   *rabbitmq.Client
	Concurrency    int
	PrefetchCount  int
	AnalyzeTimeout time.Duration
}

// Worker consumes audit work events and drives each record through
// fetch, analyze, save and completion check.
type Worker struct {
	logger         *slog.Logger
	storage        Store
	analyzer       Analyzer
	rabbitClient   *rabbitmq.Client
	concurrency    int
	prefetchCount  int
	analyzeTimeout time.Duration
	workerID       string
	jobsChan       chan *domain.AuditMessage
	wg             sync.WaitGroup
	stopChan       chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:         cfg.Logger,
		storage:        cfg.Storage,
		analyzer:       cfg.Analyzer,
		rabbitClient:   cfg.RabbitClient,
		concurrency:    concurrency,
		prefetchCount:  cfg.PrefetchCount,
		analyzeTimeout: cfg.AnalyzeTimeout,
		workerID:       "audit-worker-" + uuid.New().String()[:8],
		jobsChan:       make(chan *domain.AuditMessage),
		stopChan:       make(chan struct{}),
	}
}

// Start begins consuming and processing work events; it blocks until ctx is
// canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping audit worker",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Audit worker stopped")
}
