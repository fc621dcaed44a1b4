// Package config provides agent configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all agent configuration.
type Config struct {
	APIEndpoint     string
	DataDir         string
	SessionFile     string
	OfflineDataFile string
	PluginID        int
	Version         string
	ListenAddr      string
	AllowedOrigins  []string
	HealthGRPCAddr  string
	RequestTimeout  time.Duration
	Intervals       IntervalConfig
	LogLevel        slog.Level
}

// IntervalConfig controls the periodic background work.
type IntervalConfig struct {
	Heartbeat    time.Duration
	OfflineFlush time.Duration
}

// Env looks up environment variables. It exists so tests can supply a map.
type Env interface {
	LookupEnv(key string) (string, bool)
}

type osEnv struct{}

func (osEnv) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadFromEnv(osEnv{})
}

// LoadFromEnv reads configuration from env.
func LoadFromEnv(env Env) (*Config, error) {
	dataDir := getEnv(env, "CODETIME_DATA_DIR", defaultDataDir())

	cfg := &Config{
		APIEndpoint:     strings.TrimRight(getEnv(env, "CODETIME_API_ENDPOINT", "https://api.software.com"), "/"),
		DataDir:         dataDir,
		SessionFile:     getEnv(env, "CODETIME_SESSION_FILE", filepath.Join(dataDir, "session.db")),
		OfflineDataFile: getEnv(env, "CODETIME_OFFLINE_FILE", filepath.Join(dataDir, "data.json")),
		PluginID:        getEnvInt(env, "CODETIME_PLUGIN_ID", 2),
		Version:         getEnv(env, "CODETIME_PLUGIN_VERSION", "0.0.0-dev"),
		ListenAddr:      getEnv(env, "CODETIME_LISTEN_ADDR", "127.0.0.1:5174"),
		AllowedOrigins:  splitList(getEnv(env, "CODETIME_ALLOWED_ORIGINS", "*")),
		HealthGRPCAddr:  getEnv(env, "CODETIME_HEALTH_GRPC_ADDR", ""),
		RequestTimeout:  getEnvDuration(env, "CODETIME_REQUEST_TIMEOUT", 15*time.Second),
		Intervals: IntervalConfig{
			Heartbeat:    getEnvDuration(env, "CODETIME_HEARTBEAT_INTERVAL", time.Hour),
			OfflineFlush: getEnvDuration(env, "CODETIME_OFFLINE_FLUSH_INTERVAL", 15*time.Minute),
		},
		LogLevel: parseLevel(getEnv(env, "CODETIME_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIEndpoint == "" {
		return fmt.Errorf("CODETIME_API_ENDPOINT cannot be empty")
	}
	if !strings.HasPrefix(c.APIEndpoint, "http://") && !strings.HasPrefix(c.APIEndpoint, "https://") {
		return fmt.Errorf("CODETIME_API_ENDPOINT must be an http(s) URL")
	}
	if c.SessionFile == "" {
		return fmt.Errorf("CODETIME_SESSION_FILE cannot be empty")
	}
	if c.OfflineDataFile == "" {
		return fmt.Errorf("CODETIME_OFFLINE_FILE cannot be empty")
	}
	if c.PluginID <= 0 {
		return fmt.Errorf("CODETIME_PLUGIN_ID must be > 0")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("CODETIME_LISTEN_ADDR cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("CODETIME_REQUEST_TIMEOUT must be > 0")
	}
	if c.Intervals.Heartbeat <= 0 || c.Intervals.OfflineFlush <= 0 {
		return fmt.Errorf("heartbeat and offline flush intervals must be > 0")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".software"
	}
	return filepath.Join(home, ".software")
}

func getEnv(env Env, key, fallback string) string {
	if value, ok := env.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(env Env, key string, fallback int) int {
	value, ok := env.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(env Env, key string, fallback time.Duration) time.Duration {
	value, ok := env.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
