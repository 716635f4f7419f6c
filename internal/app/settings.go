package app

import (
	"os"
	"strconv"
	"time"

	"finpal/internal/agent"
	"finpal/internal/config"
	"finpal/internal/server"
)

// Environment variables read by SettingsFromEnv.
const (
	EnvAddr        = "FINPAL_ADDR"
	EnvDBPath      = "FINPAL_DB_PATH"
	EnvModel       = "MODEL_CHOICE"
	EnvAPIKey      = "LLM_API_KEY"
	EnvGeminiKey   = "GEMINI_API_KEY"
	EnvBaseURL     = "LLM_BASE_URL"
	EnvNormalizer  = "FINPAL_NORMALIZER"
	EnvLazyConnect = "FINPAL_LAZY_CONNECT"
)

// DefaultDBPath is the SQLite file used when nothing else is configured.
const DefaultDBPath = "finpal.db"

// DefaultReloadDebounce collapses bursts of file events into one reload.
const DefaultReloadDebounce = 500 * time.Millisecond

// Settings configures Run.
type Settings struct {
	ConfigPath string
	Addr       string
	DBPath     string

	Model      string
	APIKey     string
	BaseURL    string
	Normalizer string

	// LazyConnect defers provider startup to the first /api/connect call.
	LazyConnect bool
	// Watch reloads providers when the config file changes.
	Watch          bool
	ReloadDebounce time.Duration

	Version string
}

// SettingsFromEnv reads Settings from the environment. Unset values keep
// their defaults.
func SettingsFromEnv() Settings {
	s := Settings{
		ConfigPath:     config.ResolvePath(""),
		Addr:           getenv(EnvAddr, server.DefaultAddr),
		DBPath:         getenv(EnvDBPath, DefaultDBPath),
		Model:          getenv(EnvModel, agent.DefaultModel),
		APIKey:         os.Getenv(EnvAPIKey),
		BaseURL:        os.Getenv(EnvBaseURL),
		Normalizer:     os.Getenv(EnvNormalizer),
		ReloadDebounce: DefaultReloadDebounce,
	}
	if s.APIKey == "" {
		s.APIKey = os.Getenv(EnvGeminiKey)
	}
	if v, err := strconv.ParseBool(os.Getenv(EnvLazyConnect)); err == nil {
		s.LazyConnect = v
	}
	return s
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
