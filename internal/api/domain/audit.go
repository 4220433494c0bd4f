package domain

import (
	"errors"
)

const (
	JobStatusPending   = "PENDING"
	JobStatusCompleted = "COMPLETED"

	RecordStatusPending = "PENDING"
	RecordStatusDone    = "DONE"

	SourceTypeFile    = "FILE"
	SourceTypeAddress = "ADDRESS"
)

// Audit modes, fixed per job at submission time
const (
	ModeStatic = "STATIC"
	ModeAI     = "AI"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrEmptySubmission is returned when a submission decomposes into zero records
	ErrEmptySubmission = errors.New("submission contains no auditable sources")
)
