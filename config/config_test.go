package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/lifecycle_ive_go/config"
	"github.com/on-the-ground/lifecycle_ive_go/config/configkeys"
	"github.com/on-the-ground/lifecycle_ive_go/effects/log"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 1, cfg.EngineConfig().BufferSize)
	assert.Equal(t, 1, cfg.EngineConfig().NumWorkers)
}

func TestLoad_FileAndOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  buffer_size: 32
  num_workers: 4
log:
  level: debug
demo:
  tick_interval: 500ms
  pulse_interval: 2
`)

	cfg, err := config.Load(path, map[string]any{
		configkeys.EngineNumWorkers: 2,
		configkeys.MetricsAddr:      ":9090",
		configkeys.DemoDuration:     "1m",
	})
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Engine.BufferSize)
	assert.Equal(t, 2, cfg.Engine.NumWorkers)
	assert.Equal(t, log.LogDebug, cfg.Log.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.Demo.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.Demo.PulseInterval)
	assert.Equal(t, time.Minute, cfg.Demo.Duration)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]struct {
		body      string
		overrides map[string]any
	}{
		"unknown key":       {body: "engine:\n  queue: 3\n"},
		"bad level":         {body: "log:\n  level: loud\n"},
		"zero tick":         {overrides: map[string]any{configkeys.DemoTickInterval: "0s"}},
		"negative buffer":   {overrides: map[string]any{configkeys.EngineBufferSize: -1}},
		"override non-map":  {body: "metrics: off\n", overrides: map[string]any{configkeys.MetricsAddr: ":1"}},
		"empty key segment": {overrides: map[string]any{"engine..buffer_size": 1}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := ""
			if tc.body != "" {
				path = writeConfig(t, tc.body)
			}
			_, err := config.Load(path, tc.overrides)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"engine", "buffer_size"}, configkeys.Split(configkeys.EngineBufferSize))
	assert.Equal(t, []string{"metrics"}, configkeys.Split("metrics"))
}
