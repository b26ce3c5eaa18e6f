package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/vusic/internal/config"
	"github.com/inferloop/vusic/internal/observability/metrics/dashboards"
)

type DashboardOptions struct {
	OutputFile string
}

func NewDashboardCmd(globals *GlobalOptions) *cobra.Command {
	opts := &DashboardOptions{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print a Grafana dashboard for the encoder metrics",
		Long: `Generate a Grafana dashboard definition over the Prometheus metrics the
encoder exports, using the metric namespace and subsystem from the configuration.`,
		Example: `  vusic-encoder dashboard --output encoder-dashboard.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globals.ConfigFile)
			if err != nil {
				return err
			}

			data, err := dashboards.CreateEncoderDashboard(cfg.Metrics.Namespace, cfg.Metrics.Subsystem).ToJSON()
			if err != nil {
				return fmt.Errorf("failed to render dashboard: %w", err)
			}

			if opts.OutputFile == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(opts.OutputFile, data, 0644)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Output file (- for stdout)")

	return cmd
}
