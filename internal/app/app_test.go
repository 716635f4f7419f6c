package app

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpal/internal/config"
)

func testSettings(t *testing.T, configPath string) Settings {
	t.Helper()
	return Settings{
		ConfigPath: configPath,
		Addr:       "127.0.0.1:0",
		DBPath:     filepath.Join(t.TempDir(), "finpal.db"),
		Version:    "test",
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv(EnvAddr, "0.0.0.0:9000")
	t.Setenv(EnvDBPath, "/tmp/x.db")
	t.Setenv(EnvModel, "gpt-4o-mini")
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvGeminiKey, "gem-key")
	t.Setenv(EnvLazyConnect, "true")
	t.Setenv(config.ConfigPathEnv, "/etc/finpal/providers.yaml")

	s := SettingsFromEnv()
	assert.Equal(t, "0.0.0.0:9000", s.Addr)
	assert.Equal(t, "/tmp/x.db", s.DBPath)
	assert.Equal(t, "gpt-4o-mini", s.Model)
	assert.Equal(t, "gem-key", s.APIKey)
	assert.True(t, s.LazyConnect)
	assert.Equal(t, "/etc/finpal/providers.yaml", s.ConfigPath)
	assert.Equal(t, DefaultReloadDebounce, s.ReloadDebounce)
}

func TestSettingsFromEnv_PrefersLLMKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "llm-key")
	t.Setenv(EnvGeminiKey, "gem-key")
	assert.Equal(t, "llm-key", SettingsFromEnv().APIKey)
}

func TestNew_MissingConfig(t *testing.T) {
	_, err := New(testSettings(t, filepath.Join(t.TempDir(), "missing.json")))
	assert.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestNew_UnknownNormalizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_config.json")
	writeProviders(t, path)

	s := testSettings(t, path)
	s.APIKey = "key"
	s.Normalizer = "nope"
	_, err := New(s)
	assert.Error(t, err)
}

func TestApplication_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_config.json")
	writeProviders(t, path, "alpha")

	a, err := New(testSettings(t, path))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case err := <-errCh:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not become ready")
	}

	resp, err := http.Get("http://" + a.Addr() + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Connected bool `json:"connected"`
		Tools     int  `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.True(t, health.Connected)
	assert.Equal(t, 1, health.Tools)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Empty(t, a.Hub().Tools())
}

func TestApplication_RunLazyConnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_config.json")
	writeProviders(t, path, "alpha")

	s := testSettings(t, path)
	s.LazyConnect = true
	a, err := New(s)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	<-a.Ready()

	assert.Empty(t, a.Hub().Tools())

	resp, err := http.Post("http://"+a.Addr()+"/api/connect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, a.Hub().Tools(), 1)

	cancel()
	require.NoError(t, <-errCh)
}
