package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
api:
  base_url: "https://api.ulift.app"
  timeout: "5s"
chat:
  secure: true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.GetAPITimeout())
	assert.True(t, cfg.Chat.Secure)
	assert.Equal(t, 4000, cfg.Chat.Port, "unset keys keep their defaults")
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"upload":{"max_bytes":1024},"session":{"idle_ttl":"1m"}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.Upload.MaxBytes)
	assert.Equal(t, time.Minute, cfg.GetSessionIdleTTL())
}

func TestLoad_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("strings", func(t *testing.T) {
		t.Setenv("ULIFT_API_BASE_URL", "http://users:8080")
		t.Setenv("ULIFT_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, "http://users:8080", cfg.API.BaseURL)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("chat port and secure", func(t *testing.T) {
		t.Setenv("ULIFT_CHAT_PORT", "4100")
		t.Setenv("ULIFT_CHAT_SECURE", "true")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, 4100, cfg.Chat.Port)
		assert.True(t, cfg.Chat.Secure)
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("ULIFT_CHAT_PORT", "four")
		assert.Error(t, DefaultConfig().applyEnvOverrides())
	})
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 30*time.Second, cfg.GetAPITimeout())
	assert.Equal(t, 30*time.Minute, cfg.GetSessionIdleTTL())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Chat.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	cfg := DefaultConfig()
	cfg.ListenAddr = ":1234"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigIsLoadedOnce(t *testing.T) {
	t.Setenv("ULIFT_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	first, err := LoadConfig()
	require.NoError(t, err)
	second, err := LoadConfig()
	require.NoError(t, err)
	assert.Same(t, first, second)
}
