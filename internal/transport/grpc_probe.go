package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCProbeConfig holds configuration for the gRPC health probe.
type GRPCProbeConfig struct {
	Address          string
	Service          string
	CheckTimeout     time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCProbeConfig returns default configuration for addr.
func DefaultGRPCProbeConfig(addr string) GRPCProbeConfig {
	return GRPCProbeConfig{
		Address:          addr,
		CheckTimeout:     5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPCProbe checks reachability with the standard gRPC health service.
type GRPCProbe struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
	cfg    GRPCProbeConfig
	logger *slog.Logger
}

// NewGRPCProbe creates a probe. No network I/O happens until the first check.
func NewGRPCProbe(cfg GRPCProbeConfig, logger *slog.Logger) (*GRPCProbe, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("create health client for %s: %w", cfg.Address, err)
	}

	return &GRPCProbe{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Available implements Prober.
func (p *GRPCProbe) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CheckTimeout)
	defer cancel()

	if err := waitForReady(ctx, p.conn); err != nil {
		p.logger.Debug("Health endpoint not ready", "address", p.cfg.Address, "error", err)
		return false
	}

	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.cfg.Service})
	if err != nil {
		p.logger.Debug("Health check failed", "address", p.cfg.Address, "error", err)
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Close closes the gRPC connection.
func (p *GRPCProbe) Close() {
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}
