package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"MONGO_URI", "MONGODB_URI", "MONGO_POLL_ATTEMPTS", "OCR_LANGUAGES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "mongodb://localhost:27017/blackhole_db", cfg.MongoURI)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 30, cfg.PollAttempts)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, []string{"eng"}, cfg.OCRLanguages)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("MONGODB_URI", "mongodb://legacy:27017/old")
	t.Setenv("MONGO_RECONNECT_DELAY", "250ms")
	t.Setenv("MONGO_POLL_ATTEMPTS", "not-a-number")
	t.Setenv("OCR_LANGUAGES", "eng, deu ,")
	t.Setenv("ENVIRONMENT", "Production")

	cfg := Load()
	assert.Equal(t, "mongodb://legacy:27017/old", cfg.MongoURI)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, 30, cfg.PollAttempts)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCRLanguages)
	assert.True(t, cfg.IsProduction())

	t.Setenv("MONGO_URI", "mongodb://primary:27017/new")
	assert.Equal(t, "mongodb://primary:27017/new", Load().MongoURI)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blackhole.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connect_timeout: 2s\npoll_attempts: 10\nocr_languages: [eng, fra]\n"), 0o600))

	base := Load()
	cfg, err := LoadFile(path, base)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10, cfg.PollAttempts)
	assert.Equal(t, []string{"eng", "fra"}, cfg.OCRLanguages)
	assert.Equal(t, base.ReconnectDelay, cfg.ReconnectDelay)
	assert.Equal(t, 5*time.Second, base.ConnectTimeout, "base is not mutated")
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), Load())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_attempts: [1, 2"), 0o600))
	_, err = LoadFile(path, Load())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.ConnectTimeout = 0
	cfg.PollAttempts = -1
	cfg.EmbeddingDimensions = 0
	cfg.WeatherURL = "https://example.com/weather"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect_timeout")
	assert.Contains(t, err.Error(), "poll_attempts")
	assert.Contains(t, err.Error(), "embedding_dimensions")
	assert.Contains(t, err.Error(), "weather_url")
}
