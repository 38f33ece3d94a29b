// Package clients contains the HTTP client for the metrics server's
// control API. Every mutating call returns the freshly recomputed
// authoritative run status alongside success or failure.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mmconsole/internal/domain"
)

const defaultRequestTimeout = 10 * time.Second

// MetricsAPI talks to the control API over JSON-on-HTTP. A bearer
// credential is attached to every call.
type MetricsAPI struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewMetricsAPI creates a control API client for the given base URL.
func NewMetricsAPI(baseURL, token string) *MetricsAPI {
	return &MetricsAPI{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// StartRequest is the payload of the run start command.
type StartRequest struct {
	Symbols []string         `json:"symbols"`
	Config  domain.RunConfig `json:"config"`
}

// TestActionRequest submits a manual test order against a running symbol.
// ClientID is a caller-generated idempotency id.
type TestActionRequest struct {
	Symbol   string      `json:"symbol"`
	Side     domain.Side `json:"side"`
	ClientID string      `json:"client_id"`
}

// statusEnvelope is the common response shape of every control endpoint.
// A non-ok response carries the server's error token verbatim.
type statusEnvelope struct {
	OK      bool              `json:"ok"`
	Error   string            `json:"error,omitempty"`
	Status  *domain.RunStatus `json:"status,omitempty"`
	Symbols []string          `json:"symbols,omitempty"`
}

// doRequest is the base of every API call. It attaches the common headers,
// classifies network failures as transport errors and server rejections as
// remote errors with the token passed through.
func (c *MetricsAPI) doRequest(ctx context.Context, method, endpoint string, body any) (*statusEnvelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, domain.ValidationErr("encode %s request: %s", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, domain.ValidationErr("build %s request: %s", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.TransportErr(err, "control API call "+endpoint)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransportErr(err, "read response of "+endpoint)
	}

	var env statusEnvelope
	decodeErr := json.Unmarshal(payload, &env)

	// a rejection is a rejection even when an intermediary replaces the
	// body, e.g. a proxy's HTML 502
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		token := ""
		if decodeErr == nil {
			token = env.Error
		}
		if token == "" {
			token = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return nil, domain.RemoteErr(token)
	}

	if decodeErr != nil {
		return nil, domain.TransportErr(decodeErr, "decode response of "+endpoint)
	}
	if !env.OK {
		token := env.Error
		if token == "" {
			token = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return nil, domain.RemoteErr(token)
	}

	return &env, nil
}

// Catalog fetches the list of symbols the server can stream.
func (c *MetricsAPI) Catalog(ctx context.Context) ([]string, error) {
	env, err := c.doRequest(ctx, http.MethodGet, "/api/symbols", nil)
	if err != nil {
		return nil, err
	}
	return env.Symbols, nil
}

// Status fetches the authoritative run status.
func (c *MetricsAPI) Status(ctx context.Context) (*domain.RunStatus, error) {
	env, err := c.doRequest(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// Start issues the run start command.
func (c *MetricsAPI) Start(ctx context.Context, req StartRequest) (*domain.RunStatus, error) {
	env, err := c.doRequest(ctx, http.MethodPost, "/api/run/start", req)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// Stop issues the run stop command. Stopping an already stopped run is not
// an error; the server simply returns its current status.
func (c *MetricsAPI) Stop(ctx context.Context) (*domain.RunStatus, error) {
	env, err := c.doRequest(ctx, http.MethodPost, "/api/run/stop", nil)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// Reset issues the run reset command.
func (c *MetricsAPI) Reset(ctx context.Context) (*domain.RunStatus, error) {
	env, err := c.doRequest(ctx, http.MethodPost, "/api/run/reset", nil)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// TestAction submits a manual test order.
func (c *MetricsAPI) TestAction(ctx context.Context, req TestActionRequest) (*domain.RunStatus, error) {
	env, err := c.doRequest(ctx, http.MethodPost, "/api/run/order", req)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// UpdateSymbols pushes a new symbol selection while no run is active
// (live variant only).
func (c *MetricsAPI) UpdateSymbols(ctx context.Context, symbols []string) (*domain.RunStatus, error) {
	env, err := c.doRequest(ctx, http.MethodPost, "/api/run/symbols", map[string][]string{"symbols": symbols})
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}
