package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/codetime/internal/domain"
	"github.com/ashureev/codetime/internal/offline"
	"github.com/go-chi/chi/v5"
)

type fakeSession struct {
	mu          sync.Mutex
	loggedIn    bool
	online      bool
	music       domain.MusicResult
	sent        int
	heartbeats  []string
	tracks      []string
	prefSyncs   int
	refetchDone chan int
	refetchHold chan struct{}
}

func (f *fakeSession) GetUserStatus(context.Context) domain.UserStatus {
	return domain.UserStatus{LoggedIn: f.loggedIn}
}

func (f *fakeSession) RefetchUserStatusLazily(_ context.Context, tries int) bool {
	if f.refetchHold != nil {
		<-f.refetchHold
	}
	if f.refetchDone != nil {
		f.refetchDone <- tries
	}
	return true
}

func (f *fakeSession) SendHeartbeat(_ context.Context, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, reason)
}

func (f *fakeSession) SendMusicData(_ context.Context, track json.RawMessage) domain.MusicResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, string(track))
	return f.music
}

func (f *fakeSession) SendOfflineData(context.Context) int { return f.sent }

func (f *fakeSession) UpdatePreferences(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefSyncs++
}

func (f *fakeSession) ServerIsAvailable(context.Context) bool { return f.online }

type fakeQueue struct {
	events []string
	err    error
}

func (f *fakeQueue) Append(event json.RawMessage) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, string(event))
	return nil
}

func newTestRouter(t *testing.T, session *fakeSession, queue *fakeQueue) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := chi.NewRouter()
	NewSessionHandler(ctx, NewHandler(session, queue, nil)).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	r := newTestRouter(t, &fakeSession{loggedIn: true, online: true}, &fakeQueue{})

	w := do(t, r, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var got statusResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !got.LoggedIn || !got.ServerOnline {
		t.Errorf("Expected logged in and online, got %+v", got)
	}
}

func TestHeartbeat(t *testing.T) {
	session := &fakeSession{}
	r := newTestRouter(t, session, &fakeQueue{})

	if w := do(t, r, http.MethodPost, "/api/heartbeat", `{"reason":"ACTIVATE"}`); w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/heartbeat", ""); w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/heartbeat", "{nope"); w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	if len(session.heartbeats) != 2 || session.heartbeats[0] != "ACTIVATE" || session.heartbeats[1] != domain.ReasonManual {
		t.Errorf("Unexpected heartbeats %v", session.heartbeats)
	}
}

func TestMusic(t *testing.T) {
	session := &fakeSession{music: domain.MusicResult{Status: domain.MusicStatusOK}}
	r := newTestRouter(t, session, &fakeQueue{})

	w := do(t, r, http.MethodPost, "/api/music", `{"name":"song"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if len(session.tracks) != 1 || session.tracks[0] != `{"name":"song"}` {
		t.Errorf("Expected track forwarded verbatim, got %v", session.tracks)
	}

	session.music = domain.MusicResult{Status: domain.MusicStatusFail}
	if w := do(t, r, http.MethodPost, "/api/music", `{"name":"song"}`); w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", w.Code)
	}

	if w := do(t, r, http.MethodPost, "/api/music", "not json"); w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestEvent(t *testing.T) {
	queue := &fakeQueue{}
	r := newTestRouter(t, &fakeSession{}, queue)

	if w := do(t, r, http.MethodPost, "/api/events", `{"type":"keystroke"}`); w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if len(queue.events) != 1 {
		t.Fatalf("Expected 1 queued event, got %d", len(queue.events))
	}

	queue.err = offline.ErrInvalidEvent
	if w := do(t, r, http.MethodPost, "/api/events", `[1]`); w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	queue.err = errors.New("disk full")
	if w := do(t, r, http.MethodPost, "/api/events", `{"a":1}`); w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
}

func TestFlushOffline(t *testing.T) {
	r := newTestRouter(t, &fakeSession{sent: 3}, &fakeQueue{})

	w := do(t, r, http.MethodPost, "/api/offline/flush", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var got map[string]int
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["sent"] != 3 {
		t.Errorf("Expected sent=3, got %v", got)
	}
}

func TestSyncPreferences(t *testing.T) {
	session := &fakeSession{}
	r := newTestRouter(t, session, &fakeQueue{})

	if w := do(t, r, http.MethodPost, "/api/preferences/sync", ""); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if session.prefSyncs != 1 {
		t.Errorf("Expected one sync, got %d", session.prefSyncs)
	}
}

func TestRefetchRunsOneAtATime(t *testing.T) {
	session := &fakeSession{
		refetchHold: make(chan struct{}),
		refetchDone: make(chan int, 1),
	}
	r := newTestRouter(t, session, &fakeQueue{})

	decode := func(w *httptest.ResponseRecorder) bool {
		t.Helper()
		var got map[string]bool
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		return got["started"]
	}

	if w := do(t, r, http.MethodPost, "/api/status/refetch", ""); w.Code != http.StatusAccepted || !decode(w) {
		t.Fatal("Expected first refetch to start")
	}
	if w := do(t, r, http.MethodPost, "/api/status/refetch", ""); decode(w) {
		t.Fatal("Expected second refetch to be skipped while the first runs")
	}

	close(session.refetchHold)
	select {
	case tries := <-session.refetchDone:
		if tries != RefetchTries {
			t.Fatalf("Expected %d tries, got %d", RefetchTries, tries)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("refetch did not finish")
	}
}
