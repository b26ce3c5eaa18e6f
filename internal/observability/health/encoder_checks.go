package health

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/vusic/internal/encoder"
	"github.com/inferloop/vusic/pkg/constants"
)

// Encoder check names
const (
	CheckParametersFinite = "parameters_finite"
	CheckOrthogonality    = "recurrent_orthogonality"
	CheckZeroBias         = "zero_bias"
	CheckSmokeEncode      = "smoke_encode"
)

// EncoderChecks returns the checks for enc. Orthogonality and zero biases hold
// right after initialization but not necessarily after training updates, so
// those two only degrade the status.
func EncoderChecks(enc *encoder.Encoder) []HealthCheck {
	return []HealthCheck{
		NewBasicCheck(CheckParametersFinite, true, func(ctx context.Context) (map[string]string, error) {
			for name, t := range enc.StateDict() {
				if !allFinite(t.Data) {
					return map[string]string{"parameter": name}, fmt.Errorf("%s contains NaN or Inf", name)
				}
			}
			return nil, nil
		}),
		NewBasicCheck(CheckOrthogonality, false, func(ctx context.Context) (map[string]string, error) {
			details := make(map[string]string, 2)
			var worst float64
			for dir, cell := range map[string]*encoder.GRUCell{
				constants.DirectionForward:  enc.Forward(),
				constants.DirectionBackward: enc.Backward(),
			} {
				e := encoder.OrthogonalityError(cell.Parameters().WeightHH)
				details[dir] = fmt.Sprintf("%.3e", e)
				worst = math.Max(worst, e)
			}
			if worst > constants.OrthogonalityTolerance {
				return details, fmt.Errorf("orthogonality error %.3e exceeds %.0e", worst, constants.OrthogonalityTolerance)
			}
			return details, nil
		}),
		NewBasicCheck(CheckZeroBias, false, func(ctx context.Context) (map[string]string, error) {
			for name, t := range enc.StateDict() {
				if t.Rank() == 1 && floats.Norm(t.Data, math.Inf(1)) != 0 {
					return map[string]string{"parameter": name}, fmt.Errorf("%s is not zero", name)
				}
			}
			return nil, nil
		}),
		NewBasicCheck(CheckSmokeEncode, true, func(ctx context.Context) (map[string]string, error) {
			cfg := enc.Config()
			seqLen := 2*cfg.ContextLength + 1
			input := encoder.NewTensor(1, seqLen, cfg.InputSize)
			for i := range input.Data {
				input.Data[i] = 1
			}
			out, err := enc.Encode(ctx, input)
			if err != nil {
				return nil, err
			}
			details := map[string]string{
				"device": string(enc.Device()),
				"shape":  fmt.Sprint(out.Shape),
			}
			if !allFinite(out.Data) {
				return details, fmt.Errorf("encode produced NaN or Inf")
			}
			return details, nil
		}),
	}
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
