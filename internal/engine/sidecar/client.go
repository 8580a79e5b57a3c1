// Package sidecar talks to a model server running next to the gateway, which
// hosts the voice-cloning checkpoints and answers synthesis calls with WAV.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-clone-service/internal/engine/wire"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/synthesize"
	apiWeights    = "/v1/weights"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errTextCannotBeEmpty       = "text cannot be empty"
	errUnexpectedContentType   = "unexpected content type: expected audio/wav, got %s"
	errReceivedEmptyAudio      = "received empty audio data"
	errFmtServiceErrorWithCode = "model service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "model service returned non-OK status: %s, body: %s"
)

// Common errors.
var (
	ErrTextEmpty  = errors.New(errTextCannotBeEmpty)
	ErrEmptyAudio = errors.New(errReceivedEmptyAudio)
	ErrService    = errors.New("model service error")
)

// HTTPClient is a thin client for the model sidecar API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// ErrorResponse is the structured error body returned by the sidecar.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client. baseURL includes scheme and port
// (e.g. "http://127.0.0.1:9880"); timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends one synthesis request and returns the WAV body.
func (c *HTTPClient) Synthesize(ctx context.Context, req wire.SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	resp, err := c.postJSON(ctx, apiSynthesize, req, contentTypeWAV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType != contentTypeWAV {
		return nil, fmt.Errorf(errUnexpectedContentType, resp.Header.Get(headerContentType))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// LoadWeights asks the sidecar to switch to the given checkpoints.
func (c *HTTPClient) LoadWeights(ctx context.Context, req wire.WeightsRequest) error {
	resp, err := c.postJSON(ctx, apiWeights, req, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	return nil
}

// HealthCheck verifies that the sidecar is running.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to model service at %s: %w", c.baseURL, err)
	}

	return resp, nil
}

// parseErrorResponse decodes a structured error, falling back to the raw
// body so diagnostics are never lost.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf("%w: "+errFmtServiceErrorWithCode, ErrService,
			resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf("%w: "+errFmtServiceNonOKStatus, ErrService, resp.Status, string(body))
}
