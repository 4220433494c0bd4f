package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrContractNotVerified is returned when the block explorer has no verified
// source for the address (distinct from a lookup failure).
var ErrContractNotVerified = errors.New("contract source is not verified")

// Config holds block explorer API configuration
type Config struct {
	BaseURL string
	APIKey  string
	ChainID string
	Timeout time.Duration
}

// Client fetches verified contract source code from an Etherscan-compatible API
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// response mirrors the getsourcecode payload shape
type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		SourceCode   string `json:"SourceCode"`
		ContractName string `json:"ContractName"`
	} `json:"result"`
}

// NewClient creates a new explorer client
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchSource looks up the verified source code for a contract address.
// It fails loudly on unverified contracts and on transport errors; it never
// returns an empty source with a nil error.
func (c *Client) FetchSource(ctx context.Context, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty address")
	}

	endpoint, err := c.buildURL(address)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build explorer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("explorer lookup failed for %s: %w", address, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read explorer response for %s: %w", address, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return "", fmt.Errorf("explorer returned status %d for %s: %s", resp.StatusCode, address, snippet)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse explorer response for %s: %w", address, err)
	}

	// status != "1" means unverified or a business-level miss, not a transport error
	if parsed.Status != "1" || len(parsed.Result) == 0 {
		return "", fmt.Errorf("%w: %s", ErrContractNotVerified, address)
	}

	source := strings.TrimSpace(parsed.Result[0].SourceCode)
	if source == "" {
		return "", fmt.Errorf("%w: %s", ErrContractNotVerified, address)
	}

	c.logger.Debug("Fetched verified contract source",
		slog.String("address", address),
		slog.String("contract_name", parsed.Result[0].ContractName),
		slog.Int("source_size", len(source)),
	)

	return unwrapSource(source), nil
}

// buildURL assembles the getsourcecode query for the configured chain
func (c *Client) buildURL(address string) (string, error) {
	base := strings.TrimRight(c.config.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid explorer base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api"

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("chainid", c.config.ChainID)
	q.Set("apikey", strings.TrimSpace(c.config.APIKey))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// unwrapSource strips the double-brace standard-json container some verified
// contracts come wrapped in ({{...}} -> {...}).
func unwrapSource(source string) string {
	if strings.HasPrefix(source, "{{") && strings.HasSuffix(source, "}}") {
		return source[1 : len(source)-1]
	}
	return source
}
