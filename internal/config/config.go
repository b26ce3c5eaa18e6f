// Package config loads encoder settings from an optional YAML file and
// VUSIC_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/inferloop/vusic/internal/encoder"
	"github.com/inferloop/vusic/internal/observability/alerting"
	"github.com/inferloop/vusic/internal/observability/metrics"
	"github.com/inferloop/vusic/pkg/constants"
)

// Config is the full application configuration.
type Config struct {
	Encoder encoder.Config           `mapstructure:"encoder"`
	Log     LogConfig                `mapstructure:"log"`
	Metrics metrics.PrometheusConfig `mapstructure:"metrics"`
	Alerts  alerting.AlertThresholds `mapstructure:"alerts"`
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Load reads cfgFile (if non-empty) and the environment on top of the
// defaults. Nested keys map to variables such as VUSIC_ENCODER_INPUT_SIZE.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := metrics.DefaultPrometheusConfig()
	thresholds := alerting.DefaultAlertThresholds()

	v.SetDefault("encoder.input_size", 0)
	v.SetDefault("encoder.context_length", constants.DefaultContextLength)
	v.SetDefault("encoder.debug", constants.DefaultDebug)
	v.SetDefault("encoder.seed", 0)

	v.SetDefault("log.level", constants.DefaultLogLevel)
	v.SetDefault("log.format", constants.DefaultLogFormat)

	v.SetDefault("metrics.enabled", defaults.Enabled)
	v.SetDefault("metrics.port", defaults.Port)
	v.SetDefault("metrics.path", defaults.Path)
	v.SetDefault("metrics.namespace", defaults.Namespace)
	v.SetDefault("metrics.subsystem", defaults.Subsystem)

	v.SetDefault("alerts.p99_latency", thresholds.P99Latency)
	v.SetDefault("alerts.error_ratio", thresholds.ErrorRatio)
	v.SetDefault("alerts.device_errors", thresholds.DeviceErrors)
}

// EncoderParams returns the encoder section as the mapping accepted by
// encoder.FromParams.
func (c *Config) EncoderParams() map[string]interface{} {
	return map[string]interface{}{
		constants.ParamInputSize:     c.Encoder.InputSize,
		constants.ParamContextLength: c.Encoder.ContextLength,
		constants.ParamDebug:         c.Encoder.Debug,
		constants.ParamSeed:          c.Encoder.Seed,
	}
}
