package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/chainsentry/audit-be/internal/api/domain"
	"github.com/chainsentry/audit-be/internal/api/model"
)

// Storage handles job and record persistence for the API service
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// CreateJobWithRecords inserts the job and all its records in one transaction.
// Either everything is persisted or nothing is.
func (s *Storage) CreateJobWithRecords(ctx context.Context, job *model.Job, records []model.Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	jobQuery := `
		INSERT INTO jobs (job_id, mode, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.ExecContext(ctx, jobQuery,
		job.JobID, job.Mode, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	recordQuery := `
		INSERT INTO audit_records (
			record_id, job_id, name, source_type,
			source_code, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		)
	`
	for _, r := range records {
		_, err = tx.ExecContext(ctx, recordQuery,
			r.RecordID, r.JobID, r.Name, r.SourceType,
			r.SourceCode, r.Status, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetJobWithRecords fetches a job and all of its records
func (s *Storage) GetJobWithRecords(ctx context.Context, jobID string) (*model.Job, []model.Record, error) {
	var job model.Job
	jobQuery := `
		SELECT job_id, mode, status, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`
	err := s.db.GetContext(ctx, &job, jobQuery, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, domain.ErrJobNotFound
		}
		return nil, nil, fmt.Errorf("failed to get job: %w", err)
	}

	var records []model.Record
	recordQuery := `
		SELECT record_id, job_id, name, source_type,
		       source_code, status, audit_result, created_at, updated_at
		FROM audit_records
		WHERE job_id = $1
		ORDER BY created_at, record_id
	`
	err = s.db.SelectContext(ctx, &records, recordQuery, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get records: %w", err)
	}

	return &job, records, nil
}
