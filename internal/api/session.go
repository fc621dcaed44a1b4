package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ashureev/codetime/internal/domain"
	"github.com/ashureev/codetime/internal/offline"
	"github.com/go-chi/chi/v5"
)

// RefetchTries is the number of retries a refetch request polls for after its
// first status check.
const RefetchTries = 3

// SessionHandler exposes session operations to editor clients.
type SessionHandler struct {
	*Handler
	// baseCtx bounds background work that outlives a request.
	baseCtx    context.Context
	refetching atomic.Bool
}

// NewSessionHandler creates a session handler. Background refetches stop when baseCtx is done.
func NewSessionHandler(baseCtx context.Context, base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base, baseCtx: baseCtx}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/status/refetch", h.Refetch)
		r.Post("/heartbeat", h.Heartbeat)
		r.Post("/music", h.Music)
		r.Post("/events", h.Event)
		r.Post("/offline/flush", h.FlushOffline)
		r.Post("/preferences/sync", h.SyncPreferences)
	})
}

type statusResponse struct {
	LoggedIn     bool `json:"loggedIn"`
	ServerOnline bool `json:"serverOnline"`
}

// Status reconciles the session with the API and reports the login state.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.session.GetUserStatus(r.Context())
	JSON(w, http.StatusOK, statusResponse{
		LoggedIn:     status.LoggedIn,
		ServerOnline: h.session.ServerIsAvailable(r.Context()),
	})
}

// Refetch starts polling for a completed login in the background. Only one
// poll runs at a time.
func (h *SessionHandler) Refetch(w http.ResponseWriter, _ *http.Request) {
	if !h.refetching.CompareAndSwap(false, true) {
		JSON(w, http.StatusAccepted, map[string]bool{"started": false})
		return
	}

	go func() {
		defer h.refetching.Store(false)
		loggedIn := h.session.RefetchUserStatusLazily(h.baseCtx, RefetchTries)
		h.logger.Info("Login refetch finished", "logged_in", loggedIn)
	}()

	JSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

type heartbeatRequest struct {
	Reason string `json:"reason"`
}

// Heartbeat sends a heartbeat with the requested reason.
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	body, err := readBody(w, r)
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			Error(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = domain.ReasonManual
	}

	h.session.SendHeartbeat(r.Context(), req.Reason)
	JSON(w, http.StatusAccepted, map[string]string{"reason": req.Reason})
}

// Music forwards track data to the API.
func (h *SessionHandler) Music(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !json.Valid(body) {
		Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result := h.session.SendMusicData(r.Context(), json.RawMessage(body))
	status := http.StatusOK
	if result.Status != domain.MusicStatusOK {
		status = http.StatusBadGateway
	}
	JSON(w, status, result)
}

// Event queues one event for the next offline batch upload.
func (h *SessionHandler) Event(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.events.Append(json.RawMessage(body)); err != nil {
		if errors.Is(err, offline.ErrInvalidEvent) {
			Error(w, http.StatusBadRequest, "event must be a JSON object")
			return
		}
		h.logger.Error("Failed to queue event", "error", err)
		Error(w, http.StatusInternalServerError, "failed to queue event")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// FlushOffline uploads the offline batch now.
func (h *SessionHandler) FlushOffline(w http.ResponseWriter, r *http.Request) {
	sent := h.session.SendOfflineData(r.Context())
	JSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// SyncPreferences pushes local preferences when the server copy differs.
func (h *SessionHandler) SyncPreferences(w http.ResponseWriter, r *http.Request) {
	h.session.UpdatePreferences(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
