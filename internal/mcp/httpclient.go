package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/physiotrack/internal/live"
	"github.com/claude/physiotrack/internal/models"
	"github.com/claude/physiotrack/internal/persist"
	"github.com/claude/physiotrack/internal/session"
)

// HTTPClient implements Controller by calling the control API of a running
// instance. Used for stdio MCP mode where the session runs elsewhere
// (typically reached over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies Controller.
var _ Controller = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. apiKey
// is sent with control commands when non-empty.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, in any) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("httpclient: %s: %w: %s", path, session.ErrInvalidTransition, errorMessage(data))
	default:
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, errorMessage(data))
	}
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

func (c *HTTPClient) Status(ctx context.Context) (live.Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, nil)
	if err != nil {
		return live.Snapshot{}, err
	}
	var snap live.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return live.Snapshot{}, fmt.Errorf("httpclient: decode session: %w", err)
	}
	return snap, nil
}

func (c *HTTPClient) Start(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/session/start", nil, struct{}{})
	return err
}

func (c *HTTPClient) Stop(ctx context.Context, save bool) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/session/stop", nil, map[string]bool{"save": save})
	return err
}

func (c *HTTPClient) StartNextSet(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/session/next-set", nil, struct{}{})
	return err
}

func (c *HTTPClient) SetSide(ctx context.Context, side models.Side) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/session/side", nil, map[string]string{"side": string(side)})
	return err
}

func (c *HTTPClient) History(ctx context.Context, limit int) ([]persist.Entry, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/history", params, nil)
	if err != nil {
		return nil, err
	}
	var entries []persist.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("httpclient: decode history: %w", err)
	}
	return entries, nil
}
