// Package store provides local state persistence interfaces and implementations.
package store

import (
	"context"
	"os"
	"time"

	"github.com/ashureev/codetime/internal/domain"
)

// Item keys used by the agent.
const (
	ItemJWT    = "jwt"
	ItemName   = "name"
	ItemAppJWT = "app_jwt"
)

// Repository defines the interface for persisting the agent's local state.
type Repository interface {
	// GetItem returns the value stored under key, or "" if none is stored.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores value under key. An empty value deletes the item.
	SetItem(ctx context.Context, key, value string) error

	// DeleteItem removes the item stored under key.
	DeleteItem(ctx context.Context, key string) error

	// LocalPreferences returns the editor visibility settings.
	LocalPreferences(ctx context.Context) (domain.LocalPreferences, error)

	// SetLocalPreferences overwrites the editor visibility settings.
	SetLocalPreferences(ctx context.Context, prefs domain.LocalPreferences) error

	// SessionCreatedAt returns when the session store was first created.
	SessionCreatedAt(ctx context.Context) (time.Time, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// DefaultLocalPreferences are used for settings the editor never wrote.
var DefaultLocalPreferences = domain.LocalPreferences{
	ShowMusic: true,
	ShowGit:   true,
	ShowRank:  true,
}

// SessionFileExists reports whether the session store file exists at path.
func SessionFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
