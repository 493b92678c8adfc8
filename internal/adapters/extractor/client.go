// Package extractor provides the HTTP client adapter for the external AI
// document extraction collaborator.
package extractor

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/domain/model"
)

//go:embed response_schema.json
var responseSchema string

const (
	defaultTimeout       = 30 * time.Second
	maxResponseBodyBytes = 1 << 20 // 1MB cap on collaborator responses

	// HeaderAPIKey authenticates requests to the extraction service.
	HeaderAPIKey = "X-Api-Key"

	extractPath = "/v1/extract"
)

// Options configures the extraction client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client // optional, defaults to a 30s-timeout client
	Logger     *slog.Logger // optional
}

// Client calls the extraction collaborator over HTTP. Responses are validated
// against an embedded JSON Schema before being decoded: a schema violation is
// a permanent core.ErrMalformedResponse, while network errors and 5xx/429
// statuses are returned as plain errors so the queue retries them.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

var _ core.Extractor = (*Client)(nil)

// NewClient constructs an extraction client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("extractor: base URL is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	schema, err := jsonschema.CompileString("response_schema.json", responseSchema)
	if err != nil {
		return nil, fmt.Errorf("extractor: compile response schema: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		client:  client,
		schema:  schema,
		logger:  logger.With("component", "extractor_client"),
	}, nil
}

// MustNewClient constructs an extraction client and panics on error.
func MustNewClient(opts Options) *Client {
	c, err := NewClient(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return c
}

// Extract submits one document reference and returns the collaborator's
// structured judgment.
func (c *Client) Extract(ctx context.Context, req *model.ExtractionRequest) (*model.ExtractionResult, error) {
	if req == nil {
		return nil, errors.New("extractor: extraction request is nil")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("extractor: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+extractPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extractor: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(HeaderAPIKey, c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("extractor: call extraction service: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on a response we already read

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("extractor: read response: %w", err)
	}

	if retryable, permErr := classifyStatus(resp.StatusCode, raw); permErr != nil {
		return nil, permErr
	} else if retryable != nil {
		return nil, retryable
	}

	return c.decode(raw)
}

// classifyStatus maps non-200 statuses onto the retryable/permanent split.
func classifyStatus(status int, raw []byte) (retryable, permanent error) {
	switch {
	case status == http.StatusOK:
		return nil, nil
	case status >= 500 || status == http.StatusTooManyRequests:
		return fmt.Errorf("extractor: extraction service unavailable: status %d", status), nil
	default:
		// Any other status means the service rejected this document outright;
		// retrying the same submission cannot change the answer.
		return nil, fmt.Errorf("%w: extraction service returned status %d: %s",
			core.ErrMalformedResponse, status, truncateForError(raw))
	}
}

// decode schema-validates and unmarshals the response body. The exact bytes
// are preserved on the result for persistence alongside the verdict.
func (c *Client) decode(raw []byte) (*model.ExtractionResult, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: response is not JSON: %s", core.ErrMalformedResponse, truncateForError(raw))
	}
	if err := c.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}

	var result model.ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", core.ErrMalformedResponse, err)
	}
	result.Raw = raw
	return &result, nil
}

func truncateForError(raw []byte) string {
	const limit = 256
	s := string(raw)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
