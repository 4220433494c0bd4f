package dto

import "encoding/json"

type SubmitAuditResponse struct {
	JobID string `json:"job_id"`
	Mode  string `json:"mode"`
}

type AuditStatusResponse struct {
	Status   string            `json:"status"`
	Progress int               `json:"progress"`
	Results  []json.RawMessage `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
