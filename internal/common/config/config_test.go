package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RENDER_WORKERS", "")
	t.Setenv("ASSET_TIMEOUT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 4, cfg.RenderWorkers)
	assert.Equal(t, 10*time.Second, cfg.AssetTimeout)
	assert.Equal(t, 300.0, cfg.RenderDPI)
	assert.Equal(t, 50<<20, cfg.BodyLimit())
}

func TestLoad_DotEnvAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RENDER_WORKERS=8\nRENDER_DPI=150\nLOG_JSON=true\nSTUDIO_TEST_ONLY=1\n"), 0o644))
	t.Setenv("RENDER_WORKERS", "2")
	// Unset rather than empty: an empty variable still blocks the .env value.
	t.Setenv("RENDER_DPI", "")
	t.Setenv("LOG_JSON", "")
	os.Unsetenv("RENDER_DPI")
	os.Unsetenv("LOG_JSON")
	t.Setenv("ASSET_TIMEOUT", "3")
	t.Cleanup(func() { os.Unsetenv("STUDIO_TEST_ONLY") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.RenderWorkers)
	assert.Equal(t, 150.0, cfg.RenderDPI)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 3*time.Second, cfg.AssetTimeout)
}
