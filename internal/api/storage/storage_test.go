package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/audit-be/internal/api/domain"
	"github.com/chainsentry/audit-be/internal/api/model"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStorage(sqlx.NewDb(db, "postgres")), mock
}

func testJob() *model.Job {
	now := time.Now()
	return &model.Job{
		JobID:     "job-1",
		Mode:      domain.ModeStatic,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testRecords(jobID string, n int) []model.Record {
	now := time.Now()
	records := make([]model.Record, n)
	for i := range records {
		records[i] = model.Record{
			RecordID:   "rec-" + string(rune('a'+i)),
			JobID:      jobID,
			Name:       "Contract.sol",
			SourceType: domain.SourceTypeFile,
			SourceCode: "contract C {}",
			Status:     domain.RecordStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return records
}

func TestCreateJobWithRecords_CommitsWhenAllInsertsSucceed(t *testing.T) {
	s, mock := newMockStorage(t)
	job := testJob()
	records := testRecords(job.JobID, 2)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.CreateJobWithRecords(context.Background(), job, records)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobWithRecords_RollsBackOnRecordInsertFailure(t *testing.T) {
	s, mock := newMockStorage(t)
	job := testJob()
	records := testRecords(job.JobID, 2)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_records").
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := s.CreateJobWithRecords(context.Background(), job, records)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobWithRecords(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Now()

	mock.ExpectQuery("SELECT job_id, mode, status").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"job_id", "mode", "status", "created_at", "updated_at"},
		).AddRow("job-1", domain.ModeAI, domain.JobStatusPending, now, now))

	mock.ExpectQuery("SELECT record_id, job_id, name").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"record_id", "job_id", "name", "source_type", "source_code", "status", "audit_result", "created_at", "updated_at"},
		).
			AddRow("rec-a", "job-1", "A.sol", domain.SourceTypeFile, "contract A {}", domain.RecordStatusDone, []byte(`{"high":1}`), now, now).
			AddRow("rec-b", "job-1", "B.sol", domain.SourceTypeFile, "contract B {}", domain.RecordStatusPending, nil, now, now))

	job, records, err := s.GetJobWithRecords(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, domain.ModeAI, job.Mode)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"high":1}`, string(records[0].AuditResult))
	assert.Nil(t, records[1].AuditResult)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobWithRecords_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT job_id, mode, status").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "mode", "status", "created_at", "updated_at"}))

	_, _, err := s.GetJobWithRecords(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
