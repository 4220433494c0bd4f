package model

import (
	"encoding/json"
	"time"
)

type Job struct {
	JobID     string    `db:"job_id"`
	Mode      string    `db:"mode"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Record struct {
	RecordID    string          `db:"record_id"`
	JobID       string          `db:"job_id"`
	Name        string          `db:"name"`
	SourceType  string          `db:"source_type"`
	SourceCode  string          `db:"source_code"`
	Status      string          `db:"status"`
	AuditResult json.RawMessage `db:"audit_result"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}
