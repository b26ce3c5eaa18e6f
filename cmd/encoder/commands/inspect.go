package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/vusic/internal/encoder"
	"github.com/inferloop/vusic/internal/observability/health"
	"github.com/inferloop/vusic/pkg/constants"
)

type InspectOptions struct {
	EncoderFlags
	JSON bool
}

// ParameterReport describes one named parameter tensor.
type ParameterReport struct {
	Name               string  `json:"name"`
	Shape              []int   `json:"shape"`
	Norm               float64 `json:"norm"`
	OrthogonalityError float64 `json:"orthogonality_error,omitempty"`
}

// InspectReport is the machine-readable output of the inspect command.
type InspectReport struct {
	InputSize     int                  `json:"input_size"`
	ContextLength int                  `json:"context_length"`
	Device        string               `json:"device"`
	Seed          int64                `json:"seed"`
	Parameters    []ParameterReport    `json:"parameters"`
	Orthogonal    bool                 `json:"orthogonal"`
	ZeroBiases    bool                 `json:"zero_biases"`
	Health        *health.SystemStatus `json:"health"`
}

func NewInspectCmd(globals *GlobalOptions) *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show encoder parameter shapes and initialization checks",
		Long: `Construct an encoder from the configuration and report each parameter's
shape and L2 norm, the orthogonality error of the hidden-to-hidden weights,
whether all biases are zero, and the result of the encoder health checks.`,
		Example: `  vusic-encoder inspect --input-size 4 --seed 1
  vusic-encoder inspect --config encoder.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, globals, opts)
		},
	}

	opts.EncoderFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the report as JSON")

	return cmd
}

func runInspect(cmd *cobra.Command, globals *GlobalOptions, opts *InspectOptions) error {
	cfg, err := loadConfig(cmd, globals, &opts.EncoderFlags)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log, globals.Verbose)

	enc, err := newEncoder(cfg, logger)
	if err != nil {
		return err
	}
	defer enc.Close()

	report := buildInspectReport(enc)

	monitor := health.NewHealthMonitor(nil, logger)
	for _, check := range health.EncoderChecks(enc) {
		monitor.RegisterCheck(check)
	}
	report.Health = monitor.RunChecks(cmd.Context())

	if opts.JSON {
		out := json.NewEncoder(cmd.OutOrStdout())
		out.SetIndent("", "  ")
		return out.Encode(report)
	}
	return printInspectReport(cmd.OutOrStdout(), report)
}

func buildInspectReport(enc *encoder.Encoder) *InspectReport {
	config := enc.Config()
	report := &InspectReport{
		InputSize:     config.InputSize,
		ContextLength: config.ContextLength,
		Device:        string(enc.Device()),
		Seed:          config.Seed,
		Orthogonal:    true,
		ZeroBiases:    true,
	}

	state := enc.StateDict()
	for _, name := range encoder.StateKeys() {
		t := state[name]
		p := ParameterReport{
			Name:  name,
			Shape: t.Shape,
			Norm:  floats.Norm(t.Data, 2),
		}
		switch {
		case t.Rank() == 2 && isRecurrentWeight(name):
			p.OrthogonalityError = encoder.OrthogonalityError(mat.NewDense(t.Shape[0], t.Shape[1], t.Data))
			if p.OrthogonalityError > constants.OrthogonalityTolerance {
				report.Orthogonal = false
			}
		case t.Rank() == 1 && p.Norm != 0:
			report.ZeroBiases = false
		}
		report.Parameters = append(report.Parameters, p)
	}
	return report
}

func isRecurrentWeight(name string) bool {
	return name == constants.DirectionForward+"."+constants.WeightHH ||
		name == constants.DirectionBackward+"."+constants.WeightHH
}

func printInspectReport(w io.Writer, report *InspectReport) error {
	fmt.Fprintf(w, "Input size:     %d\n", report.InputSize)
	fmt.Fprintf(w, "Context length: %d\n", report.ContextLength)
	fmt.Fprintf(w, "Device:         %s\n", report.Device)
	fmt.Fprintf(w, "Seed:           %d\n\n", report.Seed)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMETER\tSHAPE\tNORM\tORTHO ERROR")
	for _, p := range report.Parameters {
		ortho := "-"
		if isRecurrentWeight(p.Name) {
			ortho = fmt.Sprintf("%.2e", p.OrthogonalityError)
		}
		fmt.Fprintf(tw, "%s\t%v\t%.6f\t%s\n", p.Name, p.Shape, p.Norm, ortho)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nOrthogonal recurrent weights: %t\n", report.Orthogonal)
	fmt.Fprintf(w, "Zero biases:                  %t\n", report.ZeroBiases)

	if report.Health != nil {
		fmt.Fprintf(w, "\nHealth: %s\n", report.Health.OverallStatus)
		names := make([]string, 0, len(report.Health.CheckResults))
		for name := range report.Health.CheckResults {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			result := report.Health.CheckResults[name]
			fmt.Fprintf(w, "  %-24s %-9s %s\n", name, result.Status, result.Message)
		}
	}
	return nil
}
