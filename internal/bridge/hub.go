// Package bridge connects the agent to the editor windows that host it. Each
// window holds a websocket to the agent; the hub fans session notifications
// out to them and tracks which windows have focus.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message types sent to editor windows.
const (
	TypeContext = "context"
	TypeMusic   = "music"
	TypePrompt  = "prompt"
	TypeRefresh = "refresh"
	TypePong    = "pong"
)

// PromptOffline asks the editor to tell the user the API is unreachable.
const PromptOffline = "offline"

// Message is the envelope exchanged with editor windows.
type Message struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Value   *bool  `json:"value,omitempty"`
	Visible *bool  `json:"visible,omitempty"`
	Focused *bool  `json:"focused,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

type client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	focused bool
}

func (c *client) write(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Hub tracks connected editor windows. It remembers the last published
// context flags, music visibility and any pending offline prompt so windows
// that connect later catch up.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	contexts      map[string]bool
	music         *bool
	offlinePrompt bool

	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[string]*client),
		contexts: make(map[string]bool),
		logger:   logger,
	}
}

// Register adds a connection and replays the current state to it.
func (h *Hub) Register(ctx context.Context, id string, ws *websocket.Conn) {
	c := &client{ws: ws}

	h.mu.Lock()
	if existing, ok := h.clients[id]; ok && existing.ws != ws {
		_ = existing.ws.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	h.clients[id] = c
	replay := make([]Message, 0, len(h.contexts)+2)
	for key, value := range h.contexts {
		replay = append(replay, contextMessage(key, value))
	}
	if h.music != nil {
		replay = append(replay, musicMessage(*h.music))
	}
	if h.offlinePrompt {
		replay = append(replay, offlinePromptMessage())
	}
	h.mu.Unlock()

	h.logger.Info("Editor connected", "conn_id", id)
	for _, msg := range replay {
		if err := c.write(ctx, msg); err != nil {
			h.logger.Debug("Failed to replay state", "conn_id", id, "error", err)
			return
		}
	}
}

// Unregister removes a connection if it is still the one registered under id.
func (h *Hub) Unregister(id string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[id]; ok && current.ws == ws {
		delete(h.clients, id)
		h.logger.Info("Editor disconnected", "conn_id", id)
	}
}

// Len returns the number of connected windows.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetFocus records the focus state reported by a window.
func (h *Hub) SetFocus(id string, focused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		c.focused = focused
	}
}

// Focused reports whether any connected window has focus.
func (h *Hub) Focused() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.focused {
			return true
		}
	}
	return false
}

// SetContext publishes a boolean command-context flag to every window.
func (h *Hub) SetContext(ctx context.Context, key string, value bool) {
	h.mu.Lock()
	h.contexts[key] = value
	h.mu.Unlock()
	h.broadcast(ctx, contextMessage(key, value))
}

// SetMusicVisible publishes the music visibility setting to every window.
func (h *Hub) SetMusicVisible(ctx context.Context, visible bool) {
	h.mu.Lock()
	h.music = &visible
	h.mu.Unlock()
	h.broadcast(ctx, musicMessage(visible))
}

// ShowOfflinePrompt asks every window to show the offline prompt. The prompt
// stays pending for windows that connect later until ClearOfflinePrompt.
func (h *Hub) ShowOfflinePrompt(ctx context.Context) {
	h.mu.Lock()
	h.offlinePrompt = true
	h.mu.Unlock()
	h.broadcast(ctx, offlinePromptMessage())
}

// ClearOfflinePrompt stops replaying the offline prompt to new windows.
func (h *Hub) ClearOfflinePrompt(context.Context) {
	h.mu.Lock()
	h.offlinePrompt = false
	h.mu.Unlock()
}

// RequestRefresh asks every window to redraw its session views.
func (h *Hub) RequestRefresh(ctx context.Context) {
	h.broadcast(ctx, Message{Type: TypeRefresh})
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		_ = c.ws.Close(websocket.StatusGoingAway, "agent shutting down")
		delete(h.clients, id)
	}
}

func (h *Hub) send(ctx context.Context, id string, msg Message) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.write(ctx, msg); err != nil {
		h.logger.Debug("Editor write failed", "conn_id", id, "type", msg.Type, "error", err)
	}
}

func (h *Hub) broadcast(ctx context.Context, msg Message) {
	h.mu.RLock()
	targets := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		if err := c.write(ctx, msg); err != nil {
			h.logger.Debug("Editor write failed", "conn_id", id, "type", msg.Type, "error", err)
		}
	}
}

func contextMessage(key string, value bool) Message {
	return Message{Type: TypeContext, Key: key, Value: &value}
}

func offlinePromptMessage() Message {
	return Message{Type: TypePrompt, Prompt: PromptOffline}
}

func musicMessage(visible bool) Message {
	return Message{Type: TypeMusic, Visible: &visible}
}
