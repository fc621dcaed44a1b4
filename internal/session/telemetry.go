package session

import (
	"context"
	"encoding/json"

	"github.com/ashureev/codetime/internal/domain"
)

// SendHeartbeat posts a heartbeat when the API is reachable and a token is
// cached. The outcome is logged and never returned.
func (m *Manager) SendHeartbeat(ctx context.Context, reason string) {
	jwt := m.Token(ctx)
	if jwt == "" || !m.ServerIsAvailable(ctx) {
		m.metrics.heartbeats.WithLabelValues("skipped").Inc()
		return
	}

	var sessionCtime int64
	if created, err := m.repo.SessionCreatedAt(ctx); err == nil {
		sessionCtime = created.Unix()
	} else {
		m.logger.Debug("session creation time unavailable", "error", err)
	}

	hb := domain.Heartbeat{
		PluginID:          m.pluginID,
		OS:                m.machine.OS,
		Start:             m.clock.Now().Unix(),
		Version:           m.version,
		Hostname:          m.machine.Hostname,
		SessionCtime:      sessionCtime,
		Timezone:          m.machine.Timezone,
		TriggerAnnotation: reason,
	}

	resp, err := m.transport.Post(ctx, "/data/heartbeat", hb, jwt)
	if err != nil || !resp.OK() {
		m.metrics.heartbeats.WithLabelValues("fail").Inc()
		m.logger.Warn("Heartbeat failed", "reason", reason, "error", err, "response", resp)
		return
	}
	m.metrics.heartbeats.WithLabelValues("ok").Inc()
}

// SendMusicData posts track data and reports the outcome.
func (m *Manager) SendMusicData(ctx context.Context, track json.RawMessage) domain.MusicResult {
	resp, err := m.transport.Post(ctx, "/data/music", track, m.Token(ctx))
	if err != nil {
		m.logger.Warn("Music data send failed", "error", err)
		return domain.MusicResult{Status: domain.MusicStatusFail}
	}
	if !resp.OK() {
		m.logger.Warn("Music data rejected", "response", resp)
		return domain.MusicResult{Status: domain.MusicStatusFail}
	}
	return domain.MusicResult{Status: domain.MusicStatusOK}
}

// SendOfflineData posts the offline batch. The batch file is removed only when
// the API accepted it (or reported the user deactivated) and a fresh
// reachability check succeeds. It returns the number of events removed.
func (m *Manager) SendOfflineData(ctx context.Context) int {
	if m.offline == nil || !m.offline.Exists() {
		return 0
	}

	events, err := m.offline.Read()
	if err != nil {
		m.logger.Error("failed to read offline batch", "path", m.offline.Path(), "error", err)
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	resp, err := m.transport.Post(ctx, "/data/batch", events, m.Token(ctx))
	if err != nil {
		m.logger.Warn("Offline batch send failed", "events", len(events), "error", err)
		return 0
	}
	if !resp.OK() && !resp.Deactivated() {
		m.logger.Warn("Offline batch rejected", "events", len(events), "response", resp)
		return 0
	}

	if !m.ServerIsAvailable(ctx) {
		m.logger.Warn("Offline batch kept: API unreachable after send", "events", len(events))
		return 0
	}
	if err := m.offline.Remove(); err != nil {
		m.logger.Error("failed to remove offline batch", "error", err)
		return 0
	}

	m.metrics.offlineEventsSent.Add(float64(len(events)))
	m.logger.Info("Sent offline batch", "events", len(events))
	return len(events)
}
