package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/codetime/internal/domain"
	"github.com/ashureev/codetime/internal/identity"
	"github.com/ashureev/codetime/internal/offline"
	"github.com/ashureev/codetime/internal/store"
	"github.com/ashureev/codetime/internal/transport"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type fakeRepo struct {
	mu      sync.Mutex
	items   map[string]string
	prefs   domain.LocalPreferences
	created time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:   make(map[string]string),
		prefs:   store.DefaultLocalPreferences,
		created: time.Unix(1600000000, 0),
	}
}

func (f *fakeRepo) GetItem(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[key], nil
}

func (f *fakeRepo) SetItem(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value == "" {
		delete(f.items, key)
		return nil
	}
	f.items[key] = value
	return nil
}

func (f *fakeRepo) DeleteItem(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, key)
	return nil
}

func (f *fakeRepo) LocalPreferences(context.Context) (domain.LocalPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs, nil
}

func (f *fakeRepo) SetLocalPreferences(_ context.Context, prefs domain.LocalPreferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs = prefs
	return nil
}

func (f *fakeRepo) SessionCreatedAt(context.Context) (time.Time, error) { return f.created, nil }
func (f *fakeRepo) Ping(context.Context) error                          { return nil }
func (f *fakeRepo) Close() error                                        { return nil }

func (f *fakeRepo) item(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[key]
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

// fakeAPI is an in-process stand-in for the Code Time API.
type fakeAPI struct {
	mu sync.Mutex

	online            bool
	offlineAfterBatch bool
	appToken          string
	onboardJWT        string
	states            map[string]map[string]any
	user              *domain.User
	serverPrefs       domain.Preferences
	putStatus         int
	batchStatus       int
	batchBody         string
	musicStatus       int

	requests []recordedRequest
	srv      *httptest.Server
	client   *transport.Client
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		online:      true,
		appToken:    "JWT app",
		onboardJWT:  mintToken(t, 1),
		states:      make(map[string]map[string]any),
		putStatus:   http.StatusOK,
		batchStatus: http.StatusOK,
		musicStatus: http.StatusOK,
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		online := f.online
		f.mu.Unlock()
		if !online {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	r.Get("/data/apptoken", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"jwt": f.appToken})
	})
	r.Post("/data/onboard", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != f.appToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"jwt": f.onboardJWT})
	})
	r.Get("/users/plugin/state", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		state, ok := f.states[req.Header.Get("Authorization")]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"state": "NOT_FOUND"})
			return
		}
		writeJSON(w, http.StatusOK, state)
	})
	r.Get("/users/me", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		user := f.user
		f.mu.Unlock()
		if user == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": user})
	})
	r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		prefs := f.serverPrefs
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"preferences": prefs}})
	})
	r.Put("/users/{id}/preferences", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		status := f.putStatus
		f.mu.Unlock()
		w.WriteHeader(status)
	})
	r.Post("/data/heartbeat", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	r.Post("/data/music", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		status := f.musicStatus
		f.mu.Unlock()
		w.WriteHeader(status)
	})
	r.Post("/data/batch", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		if f.offlineAfterBatch {
			f.online = false
		}
		status, body := f.batchStatus, f.batchBody
		f.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	f.client = transport.New(f.srv.URL, transport.Options{PluginID: 2, Version: "1.0.0"})
	return f
}

func (f *fakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) setState(jwt, state, email, rotated string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body := map[string]any{"state": state}
	if email != "" {
		body["email"] = email
	}
	if rotated != "" {
		body["jwt"] = rotated
	}
	f.states[jwt] = body
}

// set mutates the fake's configuration while the server is running.
func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) setOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

func (f *fakeAPI) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeAPI) last(t *testing.T, method, path string) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if r := f.requests[i]; r.Method == method && r.Path == path {
			return r
		}
	}
	t.Fatalf("no %s %s request recorded", method, path)
	return recordedRequest{}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mintToken(t *testing.T, userID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID,
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "JWT " + signed
}

type fakeEditor struct {
	mu       sync.Mutex
	contexts []bool
	music    []bool
}

func (f *fakeEditor) SetContext(_ context.Context, key string, value bool) {
	if key != domain.LoggedInContextKey {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, value)
}

func (f *fakeEditor) SetMusicVisible(_ context.Context, visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.music = append(f.music, visible)
}

func (f *fakeEditor) lastContext() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.contexts) == 0 {
		return false, false
	}
	return f.contexts[len(f.contexts)-1], true
}

func (f *fakeEditor) musicCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.music...)
}

type harness struct {
	mgr       *Manager
	api       *fakeAPI
	repo      *fakeRepo
	editor    *fakeEditor
	clock     *quartz.Mock
	batch     *offline.Batch
	refreshes chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		api:       newFakeAPI(t),
		repo:      newFakeRepo(),
		editor:    &fakeEditor{},
		clock:     quartz.NewMock(t),
		batch:     offline.New(filepath.Join(dir, "data.json")),
		refreshes: make(chan struct{}, 8),
	}
	h.mgr = NewManager(Options{
		Repo:        h.repo,
		Transport:   h.api.client,
		Prober:      transport.NewHTTPProbe(h.api.client, nil),
		Offline:     h.batch,
		Machine:     identity.Machine{Username: "dev", Hostname: "box", Timezone: "UTC", OS: "linux"},
		SessionFile: filepath.Join(dir, "session.db"),
		PluginID:    2,
		Version:     "1.0.0",
		Context:     h.editor,
		Music:       h.editor,
		OnSessionRefresh: func(context.Context) {
			h.refreshes <- struct{}{}
		},
		Clock: h.clock,
	})
	return h
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func decodeBody(t *testing.T, r recordedRequest, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("decode %s %s body %q: %v", r.Method, r.Path, r.Body, err)
	}
}
