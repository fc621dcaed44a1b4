// Package session manages the agent's identity against the Code Time API:
// login status, anonymous user provisioning, preference sync, and telemetry.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/codetime/internal/identity"
	"github.com/ashureev/codetime/internal/offline"
	"github.com/ashureev/codetime/internal/store"
	"github.com/ashureev/codetime/internal/transport"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
)

// Transport is the subset of the API client the manager uses.
type Transport interface {
	Get(ctx context.Context, path, jwt string) (*transport.Response, error)
	Put(ctx context.Context, path string, payload any, jwt string) (*transport.Response, error)
	Post(ctx context.Context, path string, payload any, jwt string) (*transport.Response, error)
}

// ContextPublisher mirrors boolean flags into the editor's command context.
type ContextPublisher interface {
	SetContext(ctx context.Context, key string, value bool)
}

// MusicNotifier is told when the music visibility setting is pulled from the server.
type MusicNotifier interface {
	SetMusicVisible(ctx context.Context, visible bool)
}

// Options configures a Manager.
type Options struct {
	Repo        store.Repository
	Transport   Transport
	Prober      transport.Prober
	Offline     *offline.Batch
	Machine     identity.Machine
	SessionFile string
	// SessionFileCreated is set when this process created the session file,
	// so anonymous user creation still reports it as missing.
	SessionFileCreated bool
	PluginID           int
	Version            string

	Context ContextPublisher
	Music   MusicNotifier
	// OnSessionRefresh runs shortly after the login state changes.
	OnSessionRefresh func(ctx context.Context)

	Clock      quartz.Clock
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Manager is the single owner of session state for the agent process.
type Manager struct {
	repo        store.Repository
	transport   Transport
	prober      transport.Prober
	offline     *offline.Batch
	machine     identity.Machine
	sessionFile string
	newSession  bool
	pluginID    int
	version     string

	contextPub ContextPublisher
	music      MusicNotifier
	onRefresh  func(ctx context.Context)

	state *State
	// tokenMu makes the "no token yet" check and the token write one step.
	tokenMu sync.Mutex

	clock   quartz.Clock
	metrics *metrics
	logger  *slog.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	contextPub := opts.Context
	if contextPub == nil {
		contextPub = noopPublisher{}
	}
	music := opts.Music
	if music == nil {
		music = noopPublisher{}
	}
	onRefresh := opts.OnSessionRefresh
	if onRefresh == nil {
		onRefresh = func(context.Context) {}
	}

	return &Manager{
		repo:        opts.Repo,
		transport:   opts.Transport,
		prober:      opts.Prober,
		offline:     opts.Offline,
		machine:     opts.Machine,
		sessionFile: opts.SessionFile,
		newSession:  opts.SessionFileCreated,
		pluginID:    opts.PluginID,
		version:     opts.Version,
		contextPub:  contextPub,
		music:       music,
		onRefresh:   onRefresh,
		state:       &State{},
		clock:       clock,
		metrics:     newMetrics(opts.Registerer),
		logger:      logger,
	}
}

// State returns the manager's session state.
func (m *Manager) State() *State {
	return m.state
}

// ServerIsAvailable probes the API. Failures are reported as unavailable.
func (m *Manager) ServerIsAvailable(ctx context.Context) bool {
	if m.prober == nil {
		return false
	}
	ok := m.prober.Available(ctx)
	if !ok {
		m.logger.Debug("Code Time API unavailable")
	}
	return ok
}

// Token returns the in-memory token, falling back to the persisted one.
func (m *Manager) Token(ctx context.Context) string {
	if jwt := m.state.Token(); jwt != "" {
		return jwt
	}
	return m.storedToken(ctx)
}

func (m *Manager) storedToken(ctx context.Context) string {
	jwt, err := m.repo.GetItem(ctx, store.ItemJWT)
	if err != nil {
		m.logger.Warn("failed to read cached token", "error", err)
		return ""
	}
	return jwt
}

// cacheToken persists jwt and only then caches it in memory.
func (m *Manager) cacheToken(ctx context.Context, jwt string) bool {
	if err := m.repo.SetItem(ctx, store.ItemJWT, jwt); err != nil {
		m.logger.Error("failed to persist token", "error", err)
		return false
	}
	m.state.setToken(jwt)
	return true
}

type noopPublisher struct{}

func (noopPublisher) SetContext(context.Context, string, bool) {}
func (noopPublisher) SetMusicVisible(context.Context, bool)    {}
