// Package accel provides the optional accelerated compute path for the
// recurrent encoder. The WebGPU implementation is compiled in with
// -tags=gpu; without the tag Open always reports ErrNoDevice and callers
// fall back to host compute.
package accel

import "errors"

// ErrNoDevice is returned by Open when no accelerated device can be used.
var ErrNoDevice = errors.New("accelerated device unavailable (build with -tags=gpu to enable)")

// GRUWeights holds one direction's GRU parameters in float32, row-major.
// WeightIH is [3*HiddenSize x InputSize], WeightHH is [3*HiddenSize x HiddenSize],
// gate blocks ordered reset, update, candidate.
type GRUWeights struct {
	InputSize  int
	HiddenSize int
	WeightIH   []float32
	WeightHH   []float32
	BiasIH     []float32
	BiasHH     []float32
}

// Validate checks that the slice lengths agree with the declared sizes.
func (w *GRUWeights) Validate() error {
	if w.InputSize <= 0 || w.HiddenSize <= 0 {
		return errors.New("gru weights: sizes must be positive")
	}
	gates := 3 * w.HiddenSize
	if len(w.WeightIH) != gates*w.InputSize || len(w.WeightHH) != gates*w.HiddenSize {
		return errors.New("gru weights: weight matrix length mismatch")
	}
	if len(w.BiasIH) != gates || len(w.BiasHH) != gates {
		return errors.New("gru weights: bias length mismatch")
	}
	return nil
}

// Device is an accelerated compute device able to run GRU steps.
type Device interface {
	Name() string
	// Bind uploads one direction's weights for a fixed batch size.
	Bind(w *GRUWeights, batch int) (Kernel, error)
	Release()
}

// Kernel runs GRU steps against weights uploaded by Device.Bind.
type Kernel interface {
	// Step computes h_next for a [batch x InputSize] input and
	// [batch x HiddenSize] previous state, both row-major.
	Step(x, h []float32) ([]float32, error)
	Release()
}
