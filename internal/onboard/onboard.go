// Package onboard drives first-run onboarding: it makes sure the agent has a
// session token before the rest of the agent starts.
package onboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/codetime/internal/retry"
	"github.com/ashureev/codetime/internal/store"
	"github.com/coder/quartz"
)

// Onboarding delays.
const (
	FocusDeferDelay   = 5 * time.Second
	OfflineRetryDelay = 10 * time.Minute
)

// Timer tags, so tests can trap specific timers.
const (
	TagFocusDefer   = "onboardFocusDefer"
	TagOfflineRetry = "onboardOfflineRetry"
)

// Session is the part of the session manager onboarding needs.
type Session interface {
	ServerIsAvailable(ctx context.Context) bool
	CreateAnonymousUser(ctx context.Context, serverIsOnline bool) (string, bool)
	Token(ctx context.Context) string
}

// Window reports whether the editor window hosting the agent has focus.
type Window interface {
	Focused() bool
}

// Prompter tells the user the agent could not reach the API. The prompt stays
// pending until ClearOfflinePrompt is called.
type Prompter interface {
	ShowOfflinePrompt(ctx context.Context)
	ClearOfflinePrompt(ctx context.Context)
}

// SuccessFunc is called once a session exists. created is true when
// onboarding provisioned a new anonymous user.
type SuccessFunc func(ctx context.Context, created bool)

// Options configures a Manager.
type Options struct {
	Session     Session
	Window      Window
	Prompter    Prompter
	SessionFile string
	Clock       quartz.Clock
	Logger      *slog.Logger
}

// Manager runs the onboarding flow.
type Manager struct {
	session     Session
	window      Window
	prompter    Prompter
	sessionFile string
	clock       quartz.Clock
	logger      *slog.Logger

	mu                     sync.Mutex
	secondaryWindowCounter int
	retryCounter           int
}

// New creates an onboarding manager.
func New(opts Options) *Manager {
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		session:     opts.Session,
		window:      opts.Window,
		prompter:    opts.Prompter,
		sessionFile: opts.SessionFile,
		clock:       clock,
		logger:      logger,
	}
}

// Onboard blocks until a session exists, then calls onSuccess. While the API
// is unreachable it retries every OfflineRetryDelay with no limit. It returns
// only ctx's error.
func (m *Manager) Onboard(ctx context.Context, onSuccess SuccessFunc) error {
	if m.shouldDefer() {
		m.logger.Debug("Window unfocused, deferring onboarding", "delay", FocusDeferDelay)
		if err := retry.Sleep(ctx, m.clock, FocusDeferDelay, TagFocusDefer); err != nil {
			return err
		}
		m.mu.Lock()
		m.secondaryWindowCounter++
		m.mu.Unlock()
	}

	var created bool
	attempt := func(ctx context.Context, _ int) bool {
		var done bool
		done, created = m.attempt(ctx)
		return done
	}

	if !attempt(ctx, 0) {
		policy := retry.Policy{Delay: OfflineRetryDelay, Tag: TagOfflineRetry}
		if err := policy.Run(ctx, m.clock, attempt); err != nil {
			return err
		}
	}

	if m.prompter != nil {
		m.prompter.ClearOfflinePrompt(ctx)
	}
	onSuccess(ctx, created)
	return nil
}

// shouldDefer lets a focused window win the race to activate first.
func (m *Manager) shouldDefer() bool {
	if m.window == nil || m.window.Focused() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secondaryWindowCounter == 0
}

func (m *Manager) attempt(ctx context.Context) (done, created bool) {
	if store.SessionFileExists(m.sessionFile) && m.session.Token(ctx) != "" {
		return true, false
	}

	if !m.session.ServerIsAvailable(ctx) {
		m.offline(ctx)
		return false, false
	}
	jwt, created := m.session.CreateAnonymousUser(ctx, true)
	if jwt == "" {
		m.offline(ctx)
		return false, false
	}

	m.logger.Info("Onboarding complete", "created", created)
	return true, created
}

// offline shows the offline prompt on the first failure only.
func (m *Manager) offline(ctx context.Context) {
	m.mu.Lock()
	first := m.retryCounter == 0
	m.retryCounter++
	m.mu.Unlock()

	m.logger.Warn("Code Time API unreachable, retrying onboarding", "delay", OfflineRetryDelay)
	if first && m.prompter != nil {
		m.prompter.ShowOfflinePrompt(ctx)
	}
}
