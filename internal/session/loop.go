package session

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/codetime/internal/domain"
)

// Intervals controls the periodic background work started by Run.
type Intervals struct {
	Heartbeat    time.Duration
	OfflineFlush time.Duration
}

// Timer tags for the periodic loops.
const (
	TagHeartbeatLoop = "heartbeatLoop"
	TagOfflineLoop   = "offlineLoop"
)

// Run sends periodic heartbeats and flushes the offline batch until ctx is done.
func (m *Manager) Run(ctx context.Context, iv Intervals) error {
	m.logger.Info("Session loops started", "heartbeat", iv.Heartbeat, "offline_flush", iv.OfflineFlush)

	heartbeat := m.clock.TickerFunc(ctx, iv.Heartbeat, func() error {
		m.SendHeartbeat(ctx, domain.ReasonHourly)
		return nil
	}, TagHeartbeatLoop)

	flush := m.clock.TickerFunc(ctx, iv.OfflineFlush, func() error {
		m.SendOfflineData(ctx)
		return nil
	}, TagOfflineLoop)

	err := errors.Join(heartbeat.Wait(), flush.Wait())
	m.logger.Info("Session loops stopped", "reason", ctx.Err())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
