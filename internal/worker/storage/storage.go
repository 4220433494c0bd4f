package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/chainsentry/audit-be/internal/worker/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetRecord retrieves an audit record by its ID
func (s *Storage) GetRecord(ctx context.Context, recordID string) (*domain.Record, error) {
	query := `
		SELECT record_id, job_id, name, source_type, source_code, status, audit_result
		FROM audit_records
		WHERE record_id = $1
	`

	var record domain.Record
	var result []byte

	err := s.db.QueryRowContext(ctx, query, recordID).Scan(
		&record.RecordID,
		&record.JobID,
		&record.Name,
		&record.SourceType,
		&record.SourceCode,
		&record.Status,
		&result,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if result != nil {
		record.AuditResult = json.RawMessage(result)
	}

	return &record, nil
}

// SaveRecordResult attaches the audit result and marks the record DONE in one
// update. Safe to re-run: it is a last-write against a record only this
// worker's event touches.
func (s *Storage) SaveRecordResult(ctx context.Context, recordID string, result json.RawMessage) error {
	query := `
		UPDATE audit_records
		SET audit_result = $1,
		    status = $2,
		    updated_at = NOW()
		WHERE record_id = $3
	`

	res, err := s.db.ExecContext(ctx, query, []byte(result), domain.RecordStatusDone, recordID)
	if err != nil {
		return fmt.Errorf("failed to save record result: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrRecordNotFound
	}

	s.logger.Info("Record result saved",
		slog.String("record_id", recordID),
		slog.Int("result_size", len(result)),
	)

	return nil
}

// CountPendingRecords returns the number of records for a job that have not
// reached DONE
func (s *Storage) CountPendingRecords(ctx context.Context, jobID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_records
		WHERE job_id = $1 AND status <> $2
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, jobID, domain.RecordStatusDone).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}

	return count, nil
}

// MarkJobCompleted flips the job to COMPLETED. Idempotent: the status guard
// makes redundant calls from concurrently finishing workers no-ops.
func (s *Storage) MarkJobCompleted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("Job completed",
			slog.String("job_id", jobID),
		)
	}

	return nil
}
