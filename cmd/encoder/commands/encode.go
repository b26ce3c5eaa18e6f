package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/vusic/internal/encoder"
	"github.com/inferloop/vusic/internal/observability/metrics"
)

type EncodeOptions struct {
	EncoderFlags
	InputFile  string
	OutputFile string
	Pretty     bool
}

func NewEncodeCmd(globals *GlobalOptions) *cobra.Command {
	opts := &EncodeOptions{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a sequence of spectral frames",
		Long: `Read a [batch][seq_len][feature_dim] JSON array, run the bidirectional
encoder and write the [batch][seq_len-2*context_length][2*input_size] context tensor.`,
		Example: `  # Encode frames with 4 features per direction, trimming one frame per side
  vusic-encoder encode --input frames.json --input-size 4 --context-length 1

  # Reproducible parameters, host compute only
  vusic-encoder encode -i 64 -c 3 --seed 7 --debug < frames.json > context.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, globals, opts)
		},
	}

	opts.EncoderFlags.register(cmd)
	cmd.Flags().StringVar(&opts.InputFile, "input", "-", "Input JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Output file (- for stdout)")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "Indent JSON output")

	return cmd
}

func runEncode(cmd *cobra.Command, globals *GlobalOptions, opts *EncodeOptions) error {
	cfg, err := loadConfig(cmd, globals, &opts.EncoderFlags)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log, globals.Verbose)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pm, err := metrics.NewPrometheusMetrics(&cfg.Metrics, logger)
	if err != nil {
		return err
	}
	if err := pm.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	enc, err := newEncoder(cfg, logger, encoder.WithMetrics(pm))
	if err != nil {
		return err
	}
	defer enc.Close()

	input, err := readFrames(cmd.InOrStdin(), opts.InputFile)
	if err != nil {
		return err
	}

	output, err := enc.Encode(ctx, input)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}

	return writeContext(cmd.OutOrStdout(), opts.OutputFile, output, opts.Pretty)
}

func readFrames(stdin io.Reader, path string) (*encoder.Tensor, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var frames [][][]float64
	if err := json.NewDecoder(r).Decode(&frames); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return encoder.FromNested(frames)
}

func writeContext(stdout io.Writer, path string, t *encoder.Tensor, pretty bool) error {
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(t.Nested()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
