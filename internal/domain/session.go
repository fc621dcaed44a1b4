package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PluginState is the remote login state for a token.
type PluginState string

const (
	StateOK        PluginState = "OK"
	StateAnonymous PluginState = "ANONYMOUS"
	StateNotFound  PluginState = "NOT_FOUND"
	StateUnknown   PluginState = "UNKNOWN"
)

// ParsePluginState maps the state field of /users/plugin/state. Missing or
// unrecognized values become StateUnknown.
func ParsePluginState(raw string) PluginState {
	switch s := PluginState(raw); s {
	case StateOK, StateAnonymous, StateNotFound:
		return s
	default:
		return StateUnknown
	}
}

// LoginResult is the outcome of checking a single token.
type LoginResult struct {
	LoggedOn bool        `json:"loggedOn"`
	State    PluginState `json:"state"`
}

// UserStatus is returned to callers of the top-level status check.
type UserStatus struct {
	LoggedIn bool `json:"loggedIn"`
}

// Creation annotations sent with /data/onboard.
const (
	AnnotationNoSessionFile = "NO_SESSION_FILE"
	AnnotationNoJWT         = "NO_JWT"
)

// LoggedInContextKey is the editor command-context flag mirroring login state.
const LoggedInContextKey = "codetime:loggedIn"

// StateChangeReason is the heartbeat trigger annotation for a login transition.
func StateChangeReason(loggedIn bool) string {
	return fmt.Sprintf("STATE_CHANGE:LOGGED_IN:%t", loggedIn)
}

// TokenClaims is the subset of claims the agent reads from a session token.
type TokenClaims struct {
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken decodes the claims of a session token without verifying its
// signature. The agent never holds the signing key; this is for display only.
func InspectToken(token string) (*TokenClaims, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(token, "JWT "))
	if raw == "" {
		return nil, fmt.Errorf("empty token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	out := &TokenClaims{}
	if id, ok := claims["id"].(float64); ok {
		out.UserID = int64(id)
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
