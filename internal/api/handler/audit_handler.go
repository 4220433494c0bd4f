package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chainsentry/audit-be/internal/api/decompose"
	"github.com/chainsentry/audit-be/internal/api/domain"
	"github.com/chainsentry/audit-be/internal/api/dto"
	"github.com/chainsentry/audit-be/internal/api/model"
)

// SubmitAudit handles POST /api/v1/audits
// Accepts a multipart submission (plain files, ZIP archives, contract
// addresses, mode flag), decomposes it, persists the job with its records and
// dispatches one work event per record.
func (h *AuditHandler) SubmitAudit(c *gin.Context) {
	h.logger.Info("SubmitAudit called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}

	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Error("Invalid multipart form", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid multipart form: " + err.Error()})
		return
	}

	mode := domain.ModeStatic
	if values := form.Value["ai"]; len(values) > 0 && values[0] == "true" {
		mode = domain.ModeAI
	}

	input, err := readSubmission(form.File["files"], form.Value["addresses"])
	if err != nil {
		h.logger.Error("Failed to read submission", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	inputs, err := h.decomposer.Decompose(c.Request.Context(), input)
	if err != nil {
		h.logger.Error("Submission decomposition failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	now := time.Now()
	job := model.Job{
		JobID:     uuid.New().String(),
		Mode:      mode,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	records := make([]model.Record, len(inputs))
	recordIDs := make([]string, len(inputs))
	for i, in := range inputs {
		recordIDs[i] = uuid.New().String()
		records[i] = model.Record{
			RecordID:   recordIDs[i],
			JobID:      job.JobID,
			Name:       in.Name,
			SourceType: in.SourceType,
			SourceCode: in.SourceCode,
			Status:     domain.RecordStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	if err := h.store.CreateJobWithRecords(c.Request.Context(), &job, records); err != nil {
		h.logger.Error("Failed to persist job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to create audit job"})
		return
	}

	if err := h.dispatcher.DispatchRecords(c.Request.Context(), job.JobID, job.Mode, recordIDs); err != nil {
		// Records exist with no events; reported as failure, repair is operational
		h.logger.Error("Failed to dispatch work events",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to dispatch audit job"})
		return
	}

	h.logger.Info("Audit job submitted",
		slog.String("job_id", job.JobID),
		slog.String("mode", job.Mode),
		slog.Int("records", len(records)),
	)

	c.JSON(http.StatusOK, dto.SubmitAuditResponse{
		JobID: job.JobID,
		Mode:  job.Mode,
	})
}

// GetAuditStatus handles GET /api/v1/audits/:job_id
// Pure read: re-derives progress from current record states on every call.
func (h *AuditHandler) GetAuditStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be a valid UUID"})
		return
	}

	job, records, err := h.store.GetJobWithRecords(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to get audit job"})
		return
	}

	results := make([]json.RawMessage, 0, len(records))
	doneCount := 0
	for _, r := range records {
		if r.Status == domain.RecordStatusDone {
			doneCount++
			if r.AuditResult != nil {
				results = append(results, r.AuditResult)
			}
		}
	}

	progress := 0
	if len(records) > 0 {
		progress = int(math.Round(float64(doneCount) / float64(len(records)) * 100))
	}

	c.JSON(http.StatusOK, dto.AuditStatusResponse{
		Status:   job.Status,
		Progress: progress,
		Results:  results,
	})
}

// readSubmission loads every uploaded file part into memory and pairs it with
// the submitted address strings
func readSubmission(files []*multipart.FileHeader, addresses []string) (decompose.Input, error) {
	input := decompose.Input{Addresses: addresses}

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return decompose.Input{}, errors.New("failed to open uploaded file " + fh.Filename)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return decompose.Input{}, errors.New("failed to read uploaded file " + fh.Filename)
		}

		input.Files = append(input.Files, decompose.File{
			Name:    fh.Filename,
			Content: content,
		})
	}

	return input, nil
}
