package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultCallTimeout bounds each remote call so a hung request can never
// stall the drain loop indefinitely.
const DefaultCallTimeout = 15 * time.Second

// HTTP talks JSON to a remote document store:
//
//	POST   {base}/v1/{kind}              -> {"id": "..."}
//	PUT    {base}/v1/documents/{id}      -> 204
//	DELETE {base}/v1/documents/{id}      -> 204 (soft delete server-side)
type HTTP struct {
	base    string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

// HTTPOption configures an HTTP gateway.
type HTTPOption func(*HTTP)

// WithAPIKey sets the bearer token sent on every call.
func WithAPIKey(key string) HTTPOption {
	return func(g *HTTP) { g.apiKey = key }
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) HTTPOption {
	return func(g *HTTP) { g.timeout = d }
}

// WithClient substitutes the underlying http.Client.
func WithClient(c *http.Client) HTTPOption {
	return func(g *HTTP) { g.client = c }
}

// NewHTTP creates an HTTP gateway for the document store at base.
func NewHTTP(base string, opts ...HTTPOption) *HTTP {
	g := &HTTP{
		base:    base,
		client:  &http.Client{},
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Create implements Gateway.Create.
func (g *HTTP) Create(ctx context.Context, kind string, payload json.RawMessage) (string, error) {
	body, err := g.do(ctx, http.MethodPost, fmt.Sprintf("%s/v1/%s", g.base, kind), payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create response missing id")
	}
	return resp.ID, nil
}

// Update implements Gateway.Update.
func (g *HTTP) Update(ctx context.Context, remoteID string, payload json.RawMessage) error {
	_, err := g.do(ctx, http.MethodPut, fmt.Sprintf("%s/v1/documents/%s", g.base, remoteID), payload)
	return err
}

// SoftDelete implements Gateway.SoftDelete.
func (g *HTTP) SoftDelete(ctx context.Context, remoteID string) error {
	_, err := g.do(ctx, http.MethodDelete, fmt.Sprintf("%s/v1/documents/%s", g.base, remoteID), nil)
	return err
}

func (g *HTTP) do(ctx context.Context, method, url string, payload json.RawMessage) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: remote returned %s: %s", method, url, resp.Status, string(respBody))
	}

	return respBody, nil
}
