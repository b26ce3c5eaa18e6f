package encoder

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/vusic/pkg/constants"
	"github.com/inferloop/vusic/pkg/errors"
)

// GRUCell computes one gated recurrent update. It keeps no state between
// calls; the hidden state is owned by the caller.
type GRUCell struct {
	inputSize  int
	hiddenSize int
	params     *CellParameters
}

// NewGRUCell wraps params after checking that their shapes are consistent.
func NewGRUCell(params *CellParameters) (*GRUCell, error) {
	if params == nil || params.WeightIH == nil || params.WeightHH == nil || params.BiasIH == nil || params.BiasHH == nil {
		return nil, errors.NewShapeMismatchError("gru cell parameters are incomplete")
	}
	inputSize, hiddenSize := params.Sizes()
	if err := checkCellShapes(params, inputSize, hiddenSize); err != nil {
		return nil, err
	}
	return &GRUCell{inputSize: inputSize, hiddenSize: hiddenSize, params: params}, nil
}

func checkCellShapes(p *CellParameters, inputSize, hiddenSize int) error {
	gates := constants.GRUGateCount * hiddenSize
	if r, c := p.WeightIH.Dims(); r != gates || c != inputSize {
		return errors.NewShapeMismatchError("weight_ih is %dx%d, want %dx%d", r, c, gates, inputSize)
	}
	if r, c := p.WeightHH.Dims(); r != gates || c != hiddenSize {
		return errors.NewShapeMismatchError("weight_hh is %dx%d, want %dx%d", r, c, gates, hiddenSize)
	}
	if n := p.BiasIH.Len(); n != gates {
		return errors.NewShapeMismatchError("bias_ih has %d values, want %d", n, gates)
	}
	if n := p.BiasHH.Len(); n != gates {
		return errors.NewShapeMismatchError("bias_hh has %d values, want %d", n, gates)
	}
	return nil
}

// InputSize returns the expected feature size of x.
func (c *GRUCell) InputSize() int { return c.inputSize }

// HiddenSize returns the size of the hidden state.
func (c *GRUCell) HiddenSize() int { return c.hiddenSize }

// Parameters returns the parameters the cell reads. Training code may update
// them in place between calls.
func (c *GRUCell) Parameters() *CellParameters { return c.params }

// Step computes h_next for a batch:
//
//	r = sigmoid(W_ir x + b_ir + W_hr h + b_hr)
//	z = sigmoid(W_iz x + b_iz + W_hz h + b_hz)
//	n = tanh(W_in x + b_in + r * (W_hn h + b_hn))
//	h_next = (1 - z) * n + z * h
//
// x is [batch x inputSize] and hPrev is [batch x hiddenSize]. Step panics with
// mat.ErrShape if the dimensions disagree.
func (c *GRUCell) Step(x, hPrev mat.Matrix) *mat.Dense {
	batch, xc := x.Dims()
	hb, hc := hPrev.Dims()
	if xc != c.inputSize || hc != c.hiddenSize || hb != batch {
		panic(mat.ErrShape)
	}

	var gi, gh mat.Dense
	gi.Mul(x, c.params.WeightIH.T())
	gh.Mul(hPrev, c.params.WeightHH.T())

	H := c.hiddenSize
	bi := c.params.BiasIH.RawVector().Data
	bh := c.params.BiasHH.RawVector().Data
	out := mat.NewDense(batch, H, nil)
	for b := 0; b < batch; b++ {
		giRow := gi.RawRowView(b)
		ghRow := gh.RawRowView(b)
		for j := 0; j < H; j++ {
			r := sigmoid(giRow[j] + bi[j] + ghRow[j] + bh[j])
			z := sigmoid(giRow[H+j] + bi[H+j] + ghRow[H+j] + bh[H+j])
			n := math.Tanh(giRow[2*H+j] + bi[2*H+j] + r*(ghRow[2*H+j]+bh[2*H+j]))
			out.Set(b, j, (1-z)*n+z*hPrev.At(b, j))
		}
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
