// Package config loads runtime settings from flags, environment variables
// prefixed with SPINESIGHT_, and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable key.
const EnvPrefix = "SPINESIGHT"

// Keys.
const (
	KeyAppName             = "app_name"
	KeyLogLevel            = "log_level"
	KeyModelsDir           = "models_dir"
	KeyDevice              = "device"
	KeyModelCacheBytes     = "model_cache_bytes"
	KeyMetricsEnabled      = "metrics_enabled"
	KeyMetricsAddress      = "metrics_address"
	KeyMetricsSamplingRate = "metrics_sampling_rate"
	KeyWorkers             = "workers"
	KeyConfigFile          = "config"
)

// Config holds the resolved application settings.
type Config struct {
	AppName             string  `mapstructure:"app_name"`
	LogLevel            string  `mapstructure:"log_level"`
	ModelsDir           string  `mapstructure:"models_dir"`
	Device              string  `mapstructure:"device"`
	ModelCacheBytes     int64   `mapstructure:"model_cache_bytes"`
	MetricsEnabled      bool    `mapstructure:"metrics_enabled"`
	MetricsAddress      string  `mapstructure:"metrics_address"`
	MetricsSamplingRate float64 `mapstructure:"metrics_sampling_rate"`
	// Workers bounds how many files of a directory batch run at once.
	Workers int `mapstructure:"workers"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AppName:             "spinesight",
		LogLevel:            "INFO",
		ModelsDir:           "models",
		Device:              "cpu",
		ModelCacheBytes:     1 << 30,
		MetricsEnabled:      false,
		MetricsAddress:      "localhost:8125",
		MetricsSamplingRate: 1.0,
		Workers:             1,
	}
}

// RegisterFlags adds the configuration flags to fs. Flags left unset fall
// back to the environment, then the config file, then Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(KeyConfigFile, "", "path to a YAML config file")
	fs.String(KeyLogLevel, d.LogLevel, "log level (DEBUG, INFO, WARN, ERROR, DISABLED)")
	fs.String(KeyModelsDir, d.ModelsDir, "directory holding backbone weight files")
	fs.String(KeyDevice, d.Device, "compute device (auto, cpu)")
	fs.Int64(KeyModelCacheBytes, d.ModelCacheBytes, "upper bound on cached model parameter bytes")
	fs.Bool(KeyMetricsEnabled, d.MetricsEnabled, "emit statsd metrics")
	fs.String(KeyMetricsAddress, d.MetricsAddress, "statsd agent address")
	fs.Int(KeyWorkers, d.Workers, "files of a directory batch processed concurrently")
}

// Load resolves the configuration. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if c.ModelCacheBytes <= 0 {
		return fmt.Errorf("config: %s must be positive, got %d", KeyModelCacheBytes, c.ModelCacheBytes)
	}
	if c.MetricsSamplingRate < 0 || c.MetricsSamplingRate > 1 {
		return fmt.Errorf("config: %s must be in [0, 1], got %g", KeyMetricsSamplingRate, c.MetricsSamplingRate)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: %s must be at least 1, got %d", KeyWorkers, c.Workers)
	}
	if c.MetricsEnabled && c.MetricsAddress == "" {
		return errors.New("config: metrics enabled without an address")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyAppName, d.AppName)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyModelsDir, d.ModelsDir)
	v.SetDefault(KeyDevice, d.Device)
	v.SetDefault(KeyModelCacheBytes, d.ModelCacheBytes)
	v.SetDefault(KeyMetricsEnabled, d.MetricsEnabled)
	v.SetDefault(KeyMetricsAddress, d.MetricsAddress)
	v.SetDefault(KeyMetricsSamplingRate, d.MetricsSamplingRate)
	v.SetDefault(KeyWorkers, d.Workers)
	v.SetDefault(KeyConfigFile, "")
}
