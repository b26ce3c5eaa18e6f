package encoder

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/vusic/pkg/constants"
)

// XavierNormal returns a rows x cols matrix drawn from N(0, 2/(fan_in+fan_out)),
// where fan_in is cols and fan_out is rows.
func XavierNormal(rows, cols int, rng *rand.Rand) *mat.Dense {
	std := math.Sqrt(2.0 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	return mat.NewDense(rows, cols, data)
}

// Orthogonal returns a rows x cols matrix with orthonormal columns (rows >= cols)
// or orthonormal rows (rows < cols), obtained from the QR decomposition of a
// standard normal matrix. Column signs follow the diagonal of R so the result
// is uniformly distributed.
func Orthogonal(rows, cols int, rng *rand.Rand) *mat.Dense {
	m, n := rows, cols
	transposed := rows < cols
	if transposed {
		m, n = cols, rows
	}

	data := make([]float64, m*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}

	var qr mat.QR
	qr.Factorize(mat.NewDense(m, n, data))
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	w := mat.NewDense(m, n, nil)
	w.Copy(q.Slice(0, m, 0, n))
	for j := 0; j < n; j++ {
		if r.At(j, j) >= 0 {
			continue
		}
		for i := 0; i < m; i++ {
			w.Set(i, j, -w.At(i, j))
		}
	}

	if transposed {
		out := mat.NewDense(rows, cols, nil)
		out.Copy(w.T())
		return out
	}
	return w
}

// ZeroBias returns a zero vector of length n.
func ZeroBias(n int) *mat.VecDense {
	return mat.NewVecDense(n, nil)
}

// OrthogonalityError returns max |(WᵀW - I)_ij| for the tall orientation of w.
func OrthogonalityError(w mat.Matrix) float64 {
	rows, cols := w.Dims()
	a := w
	if rows < cols {
		a = w.T()
	}
	var g mat.Dense
	g.Mul(a.T(), a)

	n, _ := g.Dims()
	worst := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := g.At(i, j)
			if i == j {
				v -= 1
			}
			worst = math.Max(worst, math.Abs(v))
		}
	}
	return worst
}

// CellParameters holds one direction's GRU parameters. Rows of the weight
// matrices and entries of the bias vectors are stacked in gate order
// reset, update, candidate.
type CellParameters struct {
	WeightIH *mat.Dense    // [3*hidden x input]
	WeightHH *mat.Dense    // [3*hidden x hidden]
	BiasIH   *mat.VecDense // [3*hidden]
	BiasHH   *mat.VecDense // [3*hidden]
}

// NewCellParameters draws a fresh parameter set: Xavier-normal input weights,
// orthogonal recurrent weights and zero biases.
func NewCellParameters(inputSize, hiddenSize int, rng *rand.Rand) *CellParameters {
	gates := constants.GRUGateCount * hiddenSize
	return &CellParameters{
		WeightIH: XavierNormal(gates, inputSize, rng),
		WeightHH: Orthogonal(gates, hiddenSize, rng),
		BiasIH:   ZeroBias(gates),
		BiasHH:   ZeroBias(gates),
	}
}

// Clone returns a deep copy of p.
func (p *CellParameters) Clone() *CellParameters {
	return &CellParameters{
		WeightIH: mat.DenseCopyOf(p.WeightIH),
		WeightHH: mat.DenseCopyOf(p.WeightHH),
		BiasIH:   mat.VecDenseCopyOf(p.BiasIH),
		BiasHH:   mat.VecDenseCopyOf(p.BiasHH),
	}
}

// Sizes returns the input and hidden sizes implied by the weight shapes.
func (p *CellParameters) Sizes() (inputSize, hiddenSize int) {
	_, inputSize = p.WeightIH.Dims()
	_, hiddenSize = p.WeightHH.Dims()
	return inputSize, hiddenSize
}
