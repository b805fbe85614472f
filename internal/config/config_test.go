package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene2video.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[render]
workers = 6
encoder = "libx264"

[end_card]
url = "https://example.com"

[planner]
fps = 25
`), 0644))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, 6, cfg.Render.Workers)
	assert.Equal(t, "libx264", cfg.Render.Encoder)
	assert.Equal(t, 25, cfg.Planner.FPS)
	// untouched keys keep their defaults
	assert.Equal(t, 64, cfg.Render.ChunkSize)
	assert.Equal(t, 1920, cfg.Planner.Width)
	assert.Equal(t, 3.0, cfg.EndCard.Seconds)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render]\nworkres = 3\n"), 0644))

	err := Default().LoadFile(path)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "render.workres")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SCENE2VIDEO_WORKERS":      "3",
		"SCENE2VIDEO_SHOW_STATS":   "true",
		"SCENE2VIDEO_LOG_FORMAT":   "json",
		"SCENE2VIDEO_CORS_ORIGINS": "http://a,http://b",
		"SCENE2VIDEO_ENCODER":      "",
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Render.Workers)
	assert.True(t, cfg.Render.ShowStats)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORSOrigins)
	assert.Equal(t, EncoderAuto, cfg.Render.Encoder)

	err = Default().ApplyEnv(envMap(map[string]string{
		"SCENE2VIDEO_WORKERS":    "many",
		"SCENE2VIDEO_SHOW_STATS": "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCENE2VIDEO_WORKERS")
	assert.Contains(t, err.Error(), "SCENE2VIDEO_SHOW_STATS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative workers", func(c *Config) { c.Render.Workers = -1 }},
		{"zero chunk", func(c *Config) { c.Render.ChunkSize = 0 }},
		{"no encoder", func(c *Config) { c.Render.Encoder = "" }},
		{"end card without duration", func(c *Config) { c.EndCard.URL = "x"; c.EndCard.Seconds = 0 }},
		{"planner fps", func(c *Config) { c.Planner.FPS = 0 }},
		{"max jobs", func(c *Config) { c.Server.MaxJobs = 0 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
		})
	}
}
