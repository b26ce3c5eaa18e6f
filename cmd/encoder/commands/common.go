package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/vusic/internal/config"
	"github.com/inferloop/vusic/internal/encoder"
	"github.com/inferloop/vusic/pkg/constants"
)

// GlobalOptions holds the persistent root flags.
type GlobalOptions struct {
	ConfigFile string
	Verbose    bool
}

// EncoderFlags override the encoder section of the loaded configuration.
type EncoderFlags struct {
	InputSize     int
	ContextLength int
	Debug         bool
	Seed          int64
}

func (f *EncoderFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.InputSize, "input-size", "i", 0, "Features per frame used by the encoder")
	cmd.Flags().IntVarP(&f.ContextLength, "context-length", "c", constants.DefaultContextLength, "Frames trimmed from each end")
	cmd.Flags().BoolVar(&f.Debug, "debug", constants.DefaultDebug, "Force host compute")
	cmd.Flags().Int64Var(&f.Seed, "seed", 0, "Parameter initialization seed (0 for time-based)")
}

func (f *EncoderFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("input-size") {
		cfg.Encoder.InputSize = f.InputSize
	}
	if cmd.Flags().Changed("context-length") {
		cfg.Encoder.ContextLength = f.ContextLength
	}
	if cmd.Flags().Changed("debug") {
		cfg.Encoder.Debug = f.Debug
	}
	if cmd.Flags().Changed("seed") {
		cfg.Encoder.Seed = f.Seed
	}
}

// loadConfig reads the configuration file and environment, then applies
// command-line overrides.
func loadConfig(cmd *cobra.Command, globals *GlobalOptions, flags *EncoderFlags) (*config.Config, error) {
	cfg, err := config.Load(globals.ConfigFile)
	if err != nil {
		return nil, err
	}
	flags.apply(cmd, cfg)
	return cfg, nil
}

func newEncoder(cfg *config.Config, logger *logrus.Logger, opts ...encoder.Option) (*encoder.Encoder, error) {
	enc, err := encoder.FromParams(cfg.EncoderParams(), logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return enc, nil
}

func setupLogger(cfg config.LogConfig, verbose bool) *logrus.Logger {
	logger := logrus.New()

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	if verbose {
		logLevel = logrus.DebugLevel
	}
	logger.SetLevel(logLevel)

	// Set log format
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
