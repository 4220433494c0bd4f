package handler

import (
	"context"
	"log/slog"

	"github.com/chainsentry/audit-be/internal/api/decompose"
	"github.com/chainsentry/audit-be/internal/api/model"
)

// Store is the persistence surface the handlers need
type Store interface {
	CreateJobWithRecords(ctx context.Context, job *model.Job, records []model.Record) error
	GetJobWithRecords(ctx context.Context, jobID string) (*model.Job, []model.Record, error)
}

// Decomposer expands a raw submission into record inputs
type Decomposer interface {
	Decompose(ctx context.Context, in decompose.Input) ([]decompose.RecordInput, error)
}

// Dispatcher publishes one work event per persisted record
type Dispatcher interface {
	DispatchRecords(ctx context.Context, jobID, mode string, recordIDs []string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Store         Store
	Decomposer    Decomposer
	Dispatcher    Dispatcher
	MaxUploadSize int64
}

// AuditHandler handles audit submission and status HTTP requests
type AuditHandler struct {
	logger        *slog.Logger
	store         Store
	decomposer    Decomposer
	dispatcher    Dispatcher
	maxUploadSize int64
}

// NewAuditHandler creates a new AuditHandler instance
func NewAuditHandler(deps *Dependencies) *AuditHandler {
	return &AuditHandler{
		logger:        deps.Logger,
		store:         deps.Store,
		decomposer:    deps.Decomposer,
		dispatcher:    deps.Dispatcher,
		maxUploadSize: deps.MaxUploadSize,
	}
}
