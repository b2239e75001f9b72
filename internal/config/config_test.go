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
	t.Setenv("API_ADDR", "")
	t.Setenv("COUNSEL_TURN_LOCK_SECONDS", "")

	cfg := Load()
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 120*time.Second, cfg.TurnLockTTL)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.False(t, cfg.MinioUseSSL)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("COUNSEL_TURN_LOCK_SECONDS", "30")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("COUNSEL_SECTION_STATE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.TurnLockTTL)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 86400*time.Second, cfg.SectionStateTTL)
}

func TestLoadWithFileOverlaysYAML(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	path := filepath.Join(t.TempDir(), "counsel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openaiModel: gpt-4o\nminioBucket: opinions\n"), 0o644))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.Equal(t, "opinions", cfg.MinioBucket)
	assert.Equal(t, "./db/migrations", cfg.MigrationsDir)
}

func TestLoadWithFileErrors(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated\n"), 0o644))
	_, err = LoadWithFile(path)
	assert.Error(t, err)
}
