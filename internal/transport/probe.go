package transport

import (
	"context"
	"log/slog"
)

// Prober reports whether the Code Time API is reachable. Implementations
// never return errors; any failure means unavailable.
type Prober interface {
	Available(ctx context.Context) bool
}

// HTTPProbe checks reachability with GET /ping.
type HTTPProbe struct {
	client *Client
	logger *slog.Logger
}

// NewHTTPProbe creates a probe backed by client.
func NewHTTPProbe(client *Client, logger *slog.Logger) *HTTPProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProbe{client: client, logger: logger}
}

// Available implements Prober.
func (p *HTTPProbe) Available(ctx context.Context) bool {
	resp, err := p.client.Get(ctx, "/ping", "")
	if err != nil {
		p.logger.Debug("Ping failed", "error", err)
		return false
	}
	return resp.OK()
}
