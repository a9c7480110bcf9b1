package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPINESIGHT_MODELS_DIR", "/srv/weights")
	t.Setenv("SPINESIGHT_LOG_LEVEL", "debug")
	t.Setenv("SPINESIGHT_MODEL_CACHE_BYTES", "2048")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/weights", cfg.ModelsDir)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, int64(2048), cfg.ModelCacheBytes)
}

func TestLoadFlagsBeatEnv(t *testing.T) {
	t.Setenv("SPINESIGHT_DEVICE", "gpu")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--device", "cpu", "--models_dir", "w"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, "w", cfg.ModelsDir)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spinesight.yaml")
	body := "models_dir: /data/models\nmetrics_enabled: true\nmetrics_sampling_rate: 0.25\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "/data/models", cfg.ModelsDir)
	assert.True(t, cfg.MetricsEnabled)
	assert.InDelta(t, 0.25, cfg.MetricsSamplingRate, 1e-12)
}

func TestLoadMissingConfigFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}))

	_, err := Load(fs)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.ModelCacheBytes = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MetricsSamplingRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MetricsEnabled = true
	cfg.MetricsAddress = ""
	assert.Error(t, cfg.Validate())
}
