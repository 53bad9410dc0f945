package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gigapi/gigapi-chat/config"
	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/metrics"
)

// responses above this size are rejected
const maxResponseSize = 64 << 20

// CallError is a remote procedure answering with a non-success status
type CallError struct {
	StatusCode int
	Body       string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", core.ErrRemoteCall, e.StatusCode, e.Body)
}

func (e *CallError) Unwrap() error {
	return core.ErrRemoteCall
}

// Client calls PostgREST style remote procedures: POST {base}/rest/v1/rpc/{name}
// with an empty JSON object, authenticated as the caller.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	metrics *metrics.Metrics
}

func NewClient(cfg config.RPCConfiguration, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
	}
}

// Call invokes procedure name with the caller's access token and returns the
// raw JSON response.
func (c *Client) Call(ctx context.Context, accessToken, name string) ([]byte, error) {
	res, err := c.call(ctx, accessToken, name)
	if err != nil {
		c.metrics.RemoteCallErrors.Inc()
		core.Warnf(ctx, "remote procedure %s failed: %v", name, err)
	}
	return res, err
}

func (c *Client) call(ctx context.Context, accessToken, name string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: no rpc base url configured", core.ErrRemoteCall)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty procedure name", core.ErrRemoteCall)
	}

	endpoint := c.baseURL + "/rest/v1/rpc/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRemoteCall, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRemoteCall, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", core.ErrRemoteCall, err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%w: response larger than %d bytes", core.ErrRemoteCall, maxResponseSize)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &CallError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: failed to parse response", core.ErrRemoteCall)
	}
	return body, nil
}
