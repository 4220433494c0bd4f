package domain

import "encoding/json"

// Record status constants
const (
	RecordStatusPending = "PENDING"
	RecordStatusDone    = "DONE"
)

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusCompleted = "COMPLETED"
)

// Record represents one unit of audit work loaded from the database
type Record struct {
	RecordID    string
	JobID       string
	Name        string
	SourceType  string
	SourceCode  string
	Status      string
	AuditResult json.RawMessage
}

// AuditMessage represents one work event consumed from RabbitMQ
type AuditMessage struct {
	RecordID    string `json:"record_id"`
	JobID       string `json:"job_id"`
	Mode        string `json:"mode"`
	DeliveryTag uint64 `json:"-"`
	Redelivered bool   `json:"-"`
}
