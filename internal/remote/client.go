// Package remote talks to the physiotherapy backend: frame analysis, session
// persistence and plan retrieval.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/physiotrack/internal/models"
)

// Client sends requests to the backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL. timeout bounds each
// request; the caller's context can cut it shorter.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StatusError is returned when the backend answers with a non-200 status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Path, e.Status, e.Body)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// AnalyzeFrame submits one encoded frame with the previous state. Responses
// that fail validation are returned as errors.
func (c *Client) AnalyzeFrame(ctx context.Context, req models.AnalyzeFrameRequest) (*models.AnalyzeFrameResponse, error) {
	var resp models.AnalyzeFrameResponse
	if err := c.post(ctx, "/api/analyze_frame", req, &resp); err != nil {
		return nil, fmt.Errorf("analyzing frame: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("malformed analysis response: %w", err)
	}
	return &resp, nil
}

// SaveSession records a completed or partial set. It is never retried.
func (c *Client) SaveSession(ctx context.Context, req models.SaveSessionRequest) error {
	if err := c.post(ctx, "/api/save_session", req, nil); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetPlan fetches the exercise plan for an ailment.
func (c *Client) GetPlan(ctx context.Context, ailment string) (*models.ExercisePlan, error) {
	var plan models.ExercisePlan
	if err := c.post(ctx, "/api/get_plan", models.PlanRequest{Ailment: ailment}, &plan); err != nil {
		return nil, fmt.Errorf("fetching plan: %w", err)
	}
	if plan.Ailment == "" {
		plan.Ailment = ailment
	}
	return &plan, nil
}
