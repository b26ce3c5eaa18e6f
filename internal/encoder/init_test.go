package encoder

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/vusic/pkg/constants"
)

func TestXavierNormal(t *testing.T) {
	w := XavierNormal(300, 200, rand.New(rand.NewSource(3)))

	r, c := w.Dims()
	assert.Equal(t, 300, r)
	assert.Equal(t, 200, c)

	data := w.RawMatrix().Data
	mean, std := stat.MeanStdDev(data, nil)
	assert.InDelta(t, 0, mean, 0.005)
	assert.InDelta(t, math.Sqrt(2.0/500.0), std, 0.002)
}

func TestOrthogonal(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
	}{
		{"square", 8, 8},
		{"gru recurrent", 12, 4},
		{"wide", 3, 7},
		{"single", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Orthogonal(tt.rows, tt.cols, rand.New(rand.NewSource(11)))
			r, c := w.Dims()
			assert.Equal(t, tt.rows, r)
			assert.Equal(t, tt.cols, c)
			assert.Less(t, OrthogonalityError(w), constants.OrthogonalityTolerance)
		})
	}
}

func TestOrthogonalityErrorDetectsNonOrthogonal(t *testing.T) {
	w := mat.NewDense(2, 2, []float64{1, 1, 0, 1})
	assert.InDelta(t, 1.0, OrthogonalityError(w), 1e-12)
	assert.Zero(t, OrthogonalityError(mat.NewDiagDense(3, []float64{1, -1, 1})))
}

func TestOrthogonalDeterministic(t *testing.T) {
	a := Orthogonal(6, 2, rand.New(rand.NewSource(4)))
	b := Orthogonal(6, 2, rand.New(rand.NewSource(4)))
	assert.True(t, mat.Equal(a, b))
}

func TestNewCellParameters(t *testing.T) {
	p := NewCellParameters(5, 4, rand.New(rand.NewSource(9)))

	r, c := p.WeightIH.Dims()
	assert.Equal(t, []int{12, 5}, []int{r, c})
	r, c = p.WeightHH.Dims()
	assert.Equal(t, []int{12, 4}, []int{r, c})
	assert.Equal(t, 12, p.BiasIH.Len())
	assert.Equal(t, 12, p.BiasHH.Len())

	assert.Zero(t, mat.Norm(p.BiasIH, 2))
	assert.Zero(t, mat.Norm(p.BiasHH, 2))
	assert.Less(t, OrthogonalityError(p.WeightHH), constants.OrthogonalityTolerance)

	in, hid := p.Sizes()
	assert.Equal(t, 5, in)
	assert.Equal(t, 4, hid)
}

func TestCellParametersClone(t *testing.T) {
	p := NewCellParameters(2, 2, rand.New(rand.NewSource(9)))
	q := p.Clone()
	assert.True(t, mat.Equal(p.WeightIH, q.WeightIH))

	q.WeightIH.Set(0, 0, 100)
	q.BiasHH.SetVec(0, 1)
	assert.NotEqual(t, 100.0, p.WeightIH.At(0, 0))
	assert.Zero(t, p.BiasHH.AtVec(0))
}
