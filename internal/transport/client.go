// Package transport provides the JSON-over-HTTP client for the Code Time API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxResponseBytes = 4 << 20

// Header names sent on every request.
const (
	HeaderPluginID      = "X-SWDC-Plugin-Id"
	HeaderPluginVersion = "X-SWDC-Plugin-Version"
	HeaderRequestID     = "X-Request-Id"
)

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	PluginID   int
	Version    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues requests against the Code Time API. Network failures are
// returned as errors; HTTP error statuses are not.
type Client struct {
	baseURL  string
	http     *http.Client
	pluginID int
	version  string
	logger   *slog.Logger
}

// New creates a client for baseURL.
func New(baseURL string, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		pluginID: opts.PluginID,
		version:  opts.Version,
		logger:   logger,
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path, jwt string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, jwt)
}

// Put issues a PUT request with a JSON payload.
func (c *Client) Put(ctx context.Context, path string, payload any, jwt string) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, payload, jwt)
}

// Post issues a POST request with a JSON payload.
func (c *Client) Post(ctx context.Context, path string, payload any, jwt string) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, payload, jwt)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, jwt string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := encodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if jwt != "" {
		req.Header.Set("Authorization", jwt)
	}
	if c.pluginID > 0 {
		req.Header.Set(HeaderPluginID, strconv.Itoa(c.pluginID))
	}
	if c.version != "" {
		req.Header.Set(HeaderPluginVersion, c.version)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "path", path, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	c.logger.Debug("Code Time API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
	)

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
