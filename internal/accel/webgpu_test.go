//go:build gpu

package accel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOrSkip(t *testing.T) Device {
	t.Helper()
	dev, err := Open()
	if err != nil {
		t.Skipf("no WebGPU adapter: %v", err)
	}
	return dev
}

func hostSigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// hostStep is the float64 GRU update over row-major float32 weights.
func hostStep(w *GRUWeights, batch int, x, h []float32) []float64 {
	in, hid := w.InputSize, w.HiddenSize
	out := make([]float64, batch*hid)
	for b := 0; b < batch; b++ {
		gate := func(m []float32, cols int, v []float32, row int) float64 {
			var s float64
			for k := 0; k < cols; k++ {
				s += float64(m[row*cols+k]) * float64(v[b*cols+k])
			}
			return s
		}
		for j := 0; j < hid; j++ {
			r := hostSigmoid(gate(w.WeightIH, in, x, j) + float64(w.BiasIH[j]) + gate(w.WeightHH, hid, h, j) + float64(w.BiasHH[j]))
			z := hostSigmoid(gate(w.WeightIH, in, x, hid+j) + float64(w.BiasIH[hid+j]) + gate(w.WeightHH, hid, h, hid+j) + float64(w.BiasHH[hid+j]))
			n := math.Tanh(gate(w.WeightIH, in, x, 2*hid+j) + float64(w.BiasIH[2*hid+j]) +
				r*(gate(w.WeightHH, hid, h, 2*hid+j)+float64(w.BiasHH[2*hid+j])))
			out[b*hid+j] = (1-z)*n + z*float64(h[b*hid+j])
		}
	}
	return out
}

func filled(n int, scale float32) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = scale * float32((i%7)-3)
	}
	return v
}

func TestWebGPUBindUploadsAllWeights(t *testing.T) {
	dev := openOrSkip(t)

	w := &GRUWeights{
		InputSize:  2,
		HiddenSize: 3,
		WeightIH:   filled(9*2, 0.1),
		WeightHH:   filled(9*3, -0.05),
		BiasIH:     filled(9, 0.02),
		BiasHH:     filled(9, 0.03),
	}
	kernel, err := dev.Bind(w, 2)
	require.NoError(t, err)
	defer kernel.Release()

	gk, ok := kernel.(*gruKernel)
	require.True(t, ok)
	require.Len(t, gk.weightBuffers, 4)
	for i, buf := range gk.weightBuffers {
		assert.NotNil(t, buf, "weight buffer %d", i)
	}

	x := []float32{0.5, -0.25, 1, 0.75}
	h := []float32{0.1, 0.2, -0.3, 0, 0.4, -0.1}
	got, err := kernel.Step(x, h)
	require.NoError(t, err)

	want := hostStep(w, 2, x, h)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], float64(got[i]), 1e-5)
	}
}

func TestWebGPUBindRejectsInvalidWeights(t *testing.T) {
	dev := openOrSkip(t)

	w := validWeights()
	w.BiasHH = w.BiasHH[:2]
	_, err := dev.Bind(w, 1)
	assert.Error(t, err)

	_, err = dev.Bind(validWeights(), 0)
	assert.Error(t, err)
}
