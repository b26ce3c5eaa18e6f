package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/vusic/internal/config"
	"github.com/inferloop/vusic/internal/observability/alerting"
	"github.com/inferloop/vusic/pkg/constants"
)

type AlertsOptions struct {
	OutputFile string
}

func NewAlertsCmd(globals *GlobalOptions) *cobra.Command {
	opts := &AlertsOptions{}

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Print Prometheus alerting rules for the encoder metrics",
		Example: `  vusic-encoder alerts --output encoder-rules.yaml
  VUSIC_ALERTS_ERROR_RATIO=0.01 vusic-encoder alerts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globals.ConfigFile)
			if err != nil {
				return err
			}

			rules := alerting.EncoderRules(cfg.Metrics.Namespace, cfg.Metrics.Subsystem, cfg.Alerts)
			data, err := alerting.ToPrometheusYAML(constants.AppName, rules)
			if err != nil {
				return fmt.Errorf("failed to render alert rules: %w", err)
			}

			if opts.OutputFile == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(opts.OutputFile, data, 0644)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Output file (- for stdout)")

	return cmd
}
