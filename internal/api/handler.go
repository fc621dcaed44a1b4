// Package api provides the agent's local control API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/codetime/internal/domain"
)

// maxBodyBytes bounds request bodies accepted from editor clients.
const maxBodyBytes = 1 << 20

// Session is the part of the session manager the control API exposes.
type Session interface {
	GetUserStatus(ctx context.Context) domain.UserStatus
	RefetchUserStatusLazily(ctx context.Context, tries int) bool
	SendHeartbeat(ctx context.Context, reason string)
	SendMusicData(ctx context.Context, track json.RawMessage) domain.MusicResult
	SendOfflineData(ctx context.Context) int
	UpdatePreferences(ctx context.Context)
	ServerIsAvailable(ctx context.Context) bool
}

// EventQueue accepts events for the next offline batch upload.
type EventQueue interface {
	Append(event json.RawMessage) error
}

// Handler provides common handler utilities.
type Handler struct {
	session Session
	events  EventQueue
	logger  *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(session Session, events EventQueue, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{session: session, events: events, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
