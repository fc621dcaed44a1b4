package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/codetime/internal/domain"
	"github.com/ashureev/codetime/internal/retry"
	"github.com/ashureev/codetime/internal/store"
)

// Relogin polling used by RefetchUserStatusLazily.
const (
	RefetchDelay        = 10 * time.Second
	sessionRefreshDelay = time.Second
)

// Timer tags, so tests can trap specific timers.
const (
	TagRefetch        = "refetchUserStatus"
	TagSessionRefresh = "sessionRefresh"
)

type tokenResponse struct {
	JWT string `json:"jwt"`
}

type pluginStateResponse struct {
	State string `json:"state"`
	Email string `json:"email"`
	JWT   string `json:"jwt"`
}

// CreateAnonymousUser provisions an anonymous user when no token is cached and
// returns the token in use. created is true only when this call onboarded a new
// user. The cached-token check and the write of a new token happen under one
// lock. It returns "" when no token could be obtained.
func (m *Manager) CreateAnonymousUser(ctx context.Context, serverIsOnline bool) (jwt string, created bool) {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()

	if cached := m.Token(ctx); cached != "" {
		return cached, false
	}
	if !serverIsOnline {
		return "", false
	}

	appJWT := m.appToken(ctx)
	if appJWT == "" {
		return "", false
	}

	annotation := domain.AnnotationNoJWT
	if m.newSession || !store.SessionFileExists(m.sessionFile) {
		annotation = domain.AnnotationNoSessionFile
	}

	resp, err := m.transport.Post(ctx, "/data/onboard", domain.OnboardRequest{
		Timezone:           m.machine.Timezone,
		Username:           m.machine.Username,
		CreationAnnotation: annotation,
		Hostname:           m.machine.Hostname,
	}, appJWT)
	if err != nil {
		m.logger.Warn("Anonymous user creation failed", "error", err)
		return "", false
	}
	if !resp.OK() {
		m.logger.Warn("Anonymous user creation rejected", "response", resp)
		return "", false
	}

	var body tokenResponse
	if err := resp.Decode(&body); err != nil || body.JWT == "" {
		m.logger.Warn("Anonymous user creation returned no token", "error", err)
		return "", false
	}
	if !m.cacheToken(ctx, body.JWT) {
		return "", false
	}

	m.metrics.anonymousCreated.Inc()
	m.logger.Info("Created anonymous user", "annotation", annotation)
	return body.JWT, true
}

// appToken returns the short-lived app token used to authorize onboarding.
func (m *Manager) appToken(ctx context.Context) string {
	if cached, err := m.repo.GetItem(ctx, store.ItemAppJWT); err == nil && cached != "" {
		return cached
	}

	path := fmt.Sprintf("/data/apptoken?token=%d", m.clock.Now().Unix())
	resp, err := m.transport.Get(ctx, path, "")
	if err != nil {
		m.logger.Warn("App token request failed", "error", err)
		return ""
	}
	if !resp.OK() {
		m.logger.Warn("App token request rejected", "response", resp)
		return ""
	}

	var body tokenResponse
	if err := resp.Decode(&body); err != nil || body.JWT == "" {
		m.logger.Warn("App token response had no token", "error", err)
		return ""
	}
	if err := m.repo.SetItem(ctx, store.ItemAppJWT, body.JWT); err != nil {
		m.logger.Warn("failed to cache app token", "error", err)
	}
	return body.JWT
}

// IsLoggedOn asks the API whether jwt belongs to a registered account. On
// state OK the canonical email is stored as the display name, and a rotated
// token is persisted and forces preferences to be initialized again.
func (m *Manager) IsLoggedOn(ctx context.Context, serverIsOnline bool, jwt string) domain.LoginResult {
	unknown := domain.LoginResult{LoggedOn: false, State: domain.StateUnknown}
	if !serverIsOnline || jwt == "" {
		return unknown
	}

	resp, err := m.transport.Get(ctx, "/users/plugin/state", jwt)
	if err != nil {
		m.logger.Warn("Plugin state request failed", "error", err)
		return unknown
	}
	if !resp.OK() {
		m.logger.Debug("Plugin state request rejected", "response", resp)
		return unknown
	}

	var body pluginStateResponse
	if err := resp.Decode(&body); err != nil {
		m.logger.Warn("Plugin state response unreadable", "error", err)
		return unknown
	}

	state := domain.ParsePluginState(body.State)
	m.metrics.statusChecks.WithLabelValues(string(state)).Inc()
	if state != domain.StateOK {
		return domain.LoginResult{LoggedOn: false, State: state}
	}

	if body.Email != "" {
		name, err := m.repo.GetItem(ctx, store.ItemName)
		if err != nil || name != body.Email {
			if err := m.repo.SetItem(ctx, store.ItemName, body.Email); err != nil {
				m.logger.Warn("failed to store display name", "error", err)
			}
		}
	}

	if body.JWT != "" && body.JWT != jwt {
		if m.cacheToken(ctx, body.JWT) {
			m.state.resetPrefs()
			m.logger.Info("Session token rotated")
		}
	}

	return domain.LoginResult{LoggedOn: true, State: state}
}

// GetUserStatus reconciles the local session with the API and returns whether
// the user is logged in to a registered account.
func (m *Manager) GetUserStatus(ctx context.Context) domain.UserStatus {
	if err := m.repo.DeleteItem(ctx, store.ItemAppJWT); err != nil {
		m.logger.Warn("failed to clear app token", "error", err)
	}

	cached := m.state.Token()
	online := m.ServerIsAvailable(ctx)

	if online && cached == "" && m.storedToken(ctx) == "" {
		m.CreateAnonymousUser(ctx, online)
	}

	jwt := m.Token(ctx)
	if stored := m.storedToken(ctx); stored != "" {
		jwt = stored
	}

	result := m.IsLoggedOn(ctx, online, jwt)
	if !result.LoggedOn {
		// The in-memory token may have been rotated after the stored one was read.
		if memory := m.state.Token(); memory != "" && memory != jwt {
			result = m.IsLoggedOn(ctx, online, memory)
		}
	}
	loggedIn := result.LoggedOn

	if loggedIn && m.state.claimPrefsInit() {
		m.InitializePreferences(ctx)
	}

	if !loggedIn {
		if err := m.repo.SetItem(ctx, store.ItemName, ""); err != nil {
			m.logger.Warn("failed to clear display name", "error", err)
		}
	}

	m.contextPub.SetContext(ctx, domain.LoggedInContextKey, loggedIn)

	if m.state.swapLoggedIn(loggedIn) {
		m.logger.Info("Login state changed", "logged_in", loggedIn, "state", result.State)
		m.SendHeartbeat(ctx, domain.StateChangeReason(loggedIn))
		m.clock.AfterFunc(sessionRefreshDelay, func() {
			m.onRefresh(context.Background())
		}, TagSessionRefresh)
	}

	return domain.UserStatus{LoggedIn: loggedIn}
}

// RefetchUserStatusLazily re-checks the login status every RefetchDelay until
// the user is logged in or tries retries have been used, for tries+1 checks
// in total. A tries of zero or less makes a single check. It blocks; callers
// run it in a goroutine and cancel ctx to stop it.
func (m *Manager) RefetchUserStatusLazily(ctx context.Context, tries int) bool {
	tries = max(tries, 0)

	policy := retry.Policy{Delay: RefetchDelay, MaxAttempts: tries + 1, Tag: TagRefetch}
	err := policy.Run(ctx, m.clock, func(ctx context.Context, _ int) bool {
		return m.GetUserStatus(ctx).LoggedIn
	})
	return err == nil
}
