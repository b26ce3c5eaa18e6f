package encoder

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/vusic/pkg/constants"
	"github.com/inferloop/vusic/pkg/errors"
)

// StateKeys returns the eight parameter names of an encoder's state, sorted.
func StateKeys() []string {
	keys := make([]string, 0, 8)
	for _, dir := range []string{constants.DirectionForward, constants.DirectionBackward} {
		for _, name := range []string{constants.WeightIH, constants.WeightHH, constants.BiasIH, constants.BiasHH} {
			keys = append(keys, dir+"."+name)
		}
	}
	sort.Strings(keys)
	return keys
}

// StateDict returns copies of the parameters keyed "<direction>.<name>",
// e.g. "forward.weight_ih". Weights are rank 2, biases rank 1.
func (e *Encoder) StateDict() map[string]*Tensor {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state := make(map[string]*Tensor, 8)
	putCell(state, constants.DirectionForward, e.forward.Parameters())
	putCell(state, constants.DirectionBackward, e.backward.Parameters())
	return state
}

func putCell(state map[string]*Tensor, dir string, p *CellParameters) {
	state[dir+"."+constants.WeightIH] = denseTensor(p.WeightIH)
	state[dir+"."+constants.WeightHH] = denseTensor(p.WeightHH)
	state[dir+"."+constants.BiasIH] = vecTensor(p.BiasIH)
	state[dir+"."+constants.BiasHH] = vecTensor(p.BiasHH)
}

func denseTensor(m *mat.Dense) *Tensor {
	r, c := m.Dims()
	t := NewTensor(r, c)
	for i := 0; i < r; i++ {
		copy(t.Data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return t
}

func vecTensor(v *mat.VecDense) *Tensor {
	t := NewTensor(v.Len())
	for i := range t.Data {
		t.Data[i] = v.AtVec(i)
	}
	return t
}

// LoadStateDict replaces all parameters with copies of the tensors in state.
// Every key from StateKeys must be present with the matching shape; unknown
// keys are rejected. On error the current parameters are left untouched.
func (e *Encoder) LoadStateDict(state map[string]*Tensor) error {
	known := make(map[string]bool, 8)
	for _, key := range StateKeys() {
		known[key] = true
		if t, ok := state[key]; !ok || t == nil {
			return errors.NewMissingParameterError(key)
		}
	}
	for key, t := range state {
		if !known[key] {
			var shape []int
			if t != nil {
				shape = t.Shape
			}
			return errors.NewInvalidParameterError(key, shape)
		}
	}

	size := e.config.InputSize
	forward, err := cellFromState(state, constants.DirectionForward, size)
	if err != nil {
		return err
	}
	backward, err := cellFromState(state, constants.DirectionBackward, size)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.forward, e.backward = forward, backward
	e.mu.Unlock()
	return nil
}

func cellFromState(state map[string]*Tensor, dir string, size int) (*GRUCell, error) {
	gates := constants.GRUGateCount * size

	weight := func(name string, rows, cols int) (*mat.Dense, error) {
		t := state[dir+"."+name]
		if t.Rank() != 2 || t.Shape[0] != rows || t.Shape[1] != cols || len(t.Data) != rows*cols {
			return nil, errors.NewShapeMismatchError("%s.%s has shape %v, want [%d %d]", dir, name, t.Shape, rows, cols)
		}
		return mat.NewDense(rows, cols, append([]float64(nil), t.Data...)), nil
	}
	bias := func(name string) (*mat.VecDense, error) {
		t := state[dir+"."+name]
		if t.Rank() != 1 || t.Shape[0] != gates || len(t.Data) != gates {
			return nil, errors.NewShapeMismatchError("%s.%s has shape %v, want [%d]", dir, name, t.Shape, gates)
		}
		return mat.NewVecDense(gates, append([]float64(nil), t.Data...)), nil
	}

	p := &CellParameters{}
	var err error
	if p.WeightIH, err = weight(constants.WeightIH, gates, size); err != nil {
		return nil, err
	}
	if p.WeightHH, err = weight(constants.WeightHH, gates, size); err != nil {
		return nil, err
	}
	if p.BiasIH, err = bias(constants.BiasIH); err != nil {
		return nil, err
	}
	if p.BiasHH, err = bias(constants.BiasHH); err != nil {
		return nil, err
	}
	return NewGRUCell(p)
}
