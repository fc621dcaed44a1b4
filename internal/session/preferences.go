package session

import (
	"context"
	"fmt"

	"github.com/ashureev/codetime/internal/domain"
)

type userResponse struct {
	Data *domain.User `json:"data"`
}

// GetUser fetches the profile for the cached token. It returns nil on any failure.
func (m *Manager) GetUser(ctx context.Context) *domain.User {
	jwt := m.Token(ctx)
	if jwt == "" {
		return nil
	}

	resp, err := m.transport.Get(ctx, "/users/me", jwt)
	if err != nil {
		m.logger.Warn("User request failed", "error", err)
		return nil
	}
	if !resp.OK() {
		m.logger.Debug("User request rejected", "response", resp)
		return nil
	}

	var body userResponse
	if err := resp.Decode(&body); err != nil || body.Data == nil {
		m.logger.Warn("User response unreadable", "error", err)
		return nil
	}
	return body.Data
}

func (m *Manager) serverPreferences(ctx context.Context, userID int64) (domain.Preferences, bool) {
	resp, err := m.transport.Get(ctx, fmt.Sprintf("/users/%d", userID), m.Token(ctx))
	if err != nil {
		m.logger.Warn("Preferences request failed", "error", err, "user_id", userID)
		return nil, false
	}
	if !resp.OK() {
		m.logger.Debug("Preferences request rejected", "response", resp, "user_id", userID)
		return nil, false
	}

	var body struct {
		Data struct {
			Preferences domain.Preferences `json:"preferences"`
		} `json:"data"`
	}
	if err := resp.Decode(&body); err != nil {
		m.logger.Warn("Preferences response unreadable", "error", err, "user_id", userID)
		return nil, false
	}
	return body.Data.Preferences, true
}

// InitializePreferences runs on the first login for a token. If the server is
// missing any visibility flag, the local settings are pushed; otherwise the
// server values are pulled into the local settings.
func (m *Manager) InitializePreferences(ctx context.Context) {
	user := m.GetUser(ctx)
	if user == nil {
		return
	}

	if !user.Preferences.Complete() {
		m.SendPreferencesUpdate(ctx, user.ID, user.Preferences)
		return
	}

	remote := user.Preferences.Local()
	if err := m.repo.SetLocalPreferences(ctx, remote); err != nil {
		m.logger.Error("failed to apply server preferences", "error", err, "user_id", user.ID)
		return
	}
	m.music.SetMusicVisible(ctx, remote.ShowMusic)
	m.logger.Info("Applied server preferences", "user_id", user.ID)
}

// UpdatePreferences pushes the local settings when the server's copy is
// incomplete or differs. It never pulls server values.
func (m *Manager) UpdatePreferences(ctx context.Context) {
	user := m.GetUser(ctx)
	if user == nil {
		return
	}

	prefs, ok := m.serverPreferences(ctx, user.ID)
	if !ok {
		return
	}

	local, err := m.repo.LocalPreferences(ctx)
	if err != nil {
		m.logger.Error("failed to read local preferences", "error", err)
		return
	}

	if !prefs.Complete() || !prefs.Matches(local) {
		m.SendPreferencesUpdate(ctx, user.ID, prefs)
	}
}

// SendPreferencesUpdate writes the current local settings over prefs and
// stores the result on the server. Failures are logged and not retried.
func (m *Manager) SendPreferencesUpdate(ctx context.Context, userID int64, prefs domain.Preferences) bool {
	local, err := m.repo.LocalPreferences(ctx)
	if err != nil {
		m.logger.Error("failed to read local preferences", "error", err)
		return false
	}

	path := fmt.Sprintf("/users/%d/preferences", userID)
	resp, err := m.transport.Put(ctx, path, prefs.Overlay(local), m.Token(ctx))
	if err != nil {
		m.logger.Warn("Preferences update failed", "error", err, "user_id", userID)
		return false
	}
	if !resp.OK() {
		m.logger.Warn("Preferences update rejected", "response", resp, "user_id", userID)
		return false
	}
	return true
}
