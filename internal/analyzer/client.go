package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/chainsentry/audit-be/internal/api/domain"
)

// ContractFilename is the fixed virtual filename the analysis service expects
// for the single uploaded source file.
const ContractFilename = "contract.sol"

// fileField is the multipart field name the analysis service reads
const fileField = "file"

// Config holds analysis service configuration
type Config struct {
	BaseURL    string
	StaticPath string
	AIPath     string
	Timeout    time.Duration
}

// Client calls the external contract analysis service
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// StatusError is returned when the analysis service responds with a non-2xx
// status; Body carries the raw response payload as the error detail.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analyzer returned status %d: %s", e.Code, e.Body)
}

// NewClient creates a new analyzer client
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Analyze submits one contract source to the endpoint selected by mode and
// returns the service's findings as an opaque JSON document.
func (c *Client) Analyze(ctx context.Context, mode string, sourceCode string) (json.RawMessage, error) {
	path := c.config.StaticPath
	if mode == domain.ModeAI {
		path = c.config.AIPath
	}
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path

	body, contentType, err := buildPayload(sourceCode)
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("Calling analysis service",
		slog.String("endpoint", endpoint),
		slog.String("mode", mode),
		slog.Int("source_size", len(sourceCode)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analyzer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("analyzer returned invalid JSON (%d bytes)", len(respBody))
	}

	return json.RawMessage(respBody), nil
}

// buildPayload packages the source text as a single multipart file part
func buildPayload(sourceCode string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(fileField, ContractFilename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(part, sourceCode); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}
