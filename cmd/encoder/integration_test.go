package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/vusic/cmd/encoder/commands"
	"github.com/inferloop/vusic/internal/observability/health"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func frames(batch, seqLen, feat int) [][][]float64 {
	v := make([][][]float64, batch)
	for b := range v {
		v[b] = make([][]float64, seqLen)
		for s := range v[b] {
			v[b][s] = make([]float64, feat)
			for f := range v[b][s] {
				v[b][s][f] = float64(b+1) * 0.1 * float64(s-f)
			}
		}
	}
	return v
}

func TestCLIIntegrationEncode(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "vusic-cli-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	input := filepath.Join(tempDir, "frames.json")
	data, err := json.Marshal(frames(2, 5, 4))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(input, data, 0644))

	tests := []struct {
		name     string
		args     []string
		wantErr  string
		validate func(t *testing.T, output string)
	}{
		{
			name: "Encode to file",
			args: []string{"encode", "--input", input, "--output", filepath.Join(tempDir, "context.json"),
				"--input-size", "4", "--context-length", "1", "--seed", "3", "--debug"},
			validate: func(t *testing.T, output string) {
				raw, err := os.ReadFile(filepath.Join(tempDir, "context.json"))
				require.NoError(t, err)

				var result [][][]float64
				require.NoError(t, json.Unmarshal(raw, &result))
				require.Len(t, result, 2)
				require.Len(t, result[0], 3)
				assert.Len(t, result[0][0], 8)
			},
		},
		{
			name: "Encode to stdout with extra features",
			args: []string{"encode", "--input", input, "-i", "3", "-c", "0", "--seed", "3", "--debug"},
			validate: func(t *testing.T, output string) {
				var result [][][]float64
				require.NoError(t, json.Unmarshal([]byte(output), &result))
				require.Len(t, result, 2)
				require.Len(t, result[1], 5)
				assert.Len(t, result[1][4], 6)
			},
		},
		{
			name:    "Missing input size",
			args:    []string{"encode", "--input", input, "--debug"},
			wantErr: "INVALID_INPUT_SIZE",
		},
		{
			name:    "Sequence too short",
			args:    []string{"encode", "--input", input, "-i", "4", "-c", "3", "--debug"},
			wantErr: "SEQUENCE_TOO_SHORT",
		},
		{
			name:    "Too few features",
			args:    []string{"encode", "--input", input, "-i", "6", "--debug"},
			wantErr: "SHAPE_MISMATCH",
		},
		{
			name:    "Missing input file",
			args:    []string{"encode", "--input", filepath.Join(tempDir, "absent.json"), "-i", "4"},
			wantErr: "failed to open input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := executeCommand(t, "", tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, output)
			}
		})
	}
}

func TestCLIIntegrationEncodeStdinDeterministic(t *testing.T) {
	data, err := json.Marshal(frames(1, 6, 2))
	require.NoError(t, err)

	args := []string{"encode", "-i", "2", "-c", "1", "--seed", "11", "--debug"}
	first, err := executeCommand(t, string(data), args...)
	require.NoError(t, err)
	second, err := executeCommand(t, string(data), args...)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = executeCommand(t, "{not json", args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode input")
}

func TestCLIIntegrationConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "encoder.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("encoder:\n  input_size: 2\n  context_length: 2\n  debug: true\n  seed: 5\n"), 0644))

	data, err := json.Marshal(frames(1, 6, 2))
	require.NoError(t, err)

	output, err := executeCommand(t, string(data), "--config", cfgFile, "encode")
	require.NoError(t, err)

	var result [][][]float64
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	require.Len(t, result[0], 2)
	assert.Len(t, result[0][0], 4)

	// Flags take precedence over the file.
	output, err = executeCommand(t, string(data), "--config", cfgFile, "encode", "-c", "0")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.Len(t, result[0], 6)
}

func TestCLIIntegrationInspect(t *testing.T) {
	output, err := executeCommand(t, "", "inspect", "--input-size", "3", "--seed", "5", "--debug", "--json")
	require.NoError(t, err)

	var report commands.InspectReport
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, 3, report.InputSize)
	assert.Equal(t, "host", report.Device)
	assert.Equal(t, int64(5), report.Seed)
	assert.True(t, report.Orthogonal)
	assert.True(t, report.ZeroBiases)
	require.NotNil(t, report.Health)
	assert.Equal(t, health.StatusHealthy, report.Health.OverallStatus)
	require.Len(t, report.Parameters, 8)
	for _, p := range report.Parameters {
		if strings.HasSuffix(p.Name, "weight_ih") || strings.HasSuffix(p.Name, "weight_hh") {
			assert.Equal(t, []int{9, 3}, p.Shape)
		} else {
			assert.Equal(t, []int{9}, p.Shape)
			assert.Zero(t, p.Norm)
		}
	}

	output, err = executeCommand(t, "", "inspect", "-i", "2", "--seed", "5", "--debug")
	require.NoError(t, err)
	assert.Contains(t, output, "forward.weight_hh")
	assert.Contains(t, output, "Orthogonal recurrent weights: true")
	assert.Contains(t, output, "Health: healthy")
}

func TestCLIIntegrationVersion(t *testing.T) {
	output, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, output, "vusic-encoder "+commands.Version)

	output, err = executeCommand(t, "", "version", "--json")
	require.NoError(t, err)

	var info commands.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Equal(t, commands.Version, info.Version)
}

func TestCLIIntegrationDashboard(t *testing.T) {
	output, err := executeCommand(t, "", "dashboard")
	require.NoError(t, err)

	var dashboard map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &dashboard))
	assert.Equal(t, "vusic_encoder-overview", dashboard["uid"])
	assert.Contains(t, output, "vusic_encoder_encode_duration_seconds_bucket")
}

func TestCLIIntegrationAlerts(t *testing.T) {
	t.Setenv("VUSIC_ALERTS_ERROR_RATIO", "0.01")

	output, err := executeCommand(t, "", "alerts")
	require.NoError(t, err)
	assert.Contains(t, output, "name: vusic-encoder")
	assert.Contains(t, output, "alert: EncoderHighErrorRatio")
	assert.Contains(t, output, "> 0.01")
	assert.Contains(t, output, "vusic_encoder_encode_duration_seconds_bucket")
}
