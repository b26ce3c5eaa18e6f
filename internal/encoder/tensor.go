package encoder

import (
	"math"

	"github.com/inferloop/vusic/pkg/errors"
)

// Tensor is a dense row-major float64 array.
type Tensor struct {
	Data    []float64
	Shape   []int
	Strides []int
}

// NewTensor allocates a zero-filled tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Data: make([]float64, n), Shape: append([]int(nil), shape...), Strides: stridesFor(shape)}
}

// NewTensorFromSlice wraps data (without copying) as a tensor of the given shape.
func NewTensorFromSlice(data []float64, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, errors.NewShapeMismatchError("negative dimension in shape %v", shape)
		}
		n *= d
	}
	if n != len(data) {
		return nil, errors.NewShapeMismatchError("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...), Strides: stridesFor(shape)}, nil
}

// FromNested builds a rank-3 tensor from a [batch][seq][feature] array.
// Ragged inputs are rejected.
func FromNested(v [][][]float64) (*Tensor, error) {
	if len(v) == 0 || len(v[0]) == 0 {
		return nil, errors.NewShapeMismatchError("empty batch or sequence")
	}
	batch, seq, feat := len(v), len(v[0]), len(v[0][0])
	t := NewTensor(batch, seq, feat)
	for b := range v {
		if len(v[b]) != seq {
			return nil, errors.NewShapeMismatchError("batch %d has %d frames, want %d", b, len(v[b]), seq)
		}
		for s := range v[b] {
			if len(v[b][s]) != feat {
				return nil, errors.NewShapeMismatchError("frame [%d,%d] has %d features, want %d", b, s, len(v[b][s]), feat)
			}
			copy(t.Data[t.offset(b, s, 0):], v[b][s])
		}
	}
	return t, nil
}

func stridesFor(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Size returns the number of elements.
func (t *Tensor) Size() int { return len(t.Data) }

func (t *Tensor) offset(idx ...int) int {
	off := 0
	for i, v := range idx {
		off += v * t.Strides[i]
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float64 { return t.Data[t.offset(idx...)] }

// Set stores v at idx.
func (t *Tensor) Set(v float64, idx ...int) { t.Data[t.offset(idx...)] = v }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:    append([]float64(nil), t.Data...),
		Shape:   append([]int(nil), t.Shape...),
		Strides: append([]int(nil), t.Strides...),
	}
}

// Equal reports whether both tensors have the same shape and bit-identical data.
func (t *Tensor) Equal(o *Tensor) bool {
	if o == nil || len(t.Shape) != len(o.Shape) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	for i := range t.Data {
		if math.Float64bits(t.Data[i]) != math.Float64bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// Nested converts a rank-3 tensor to a [batch][seq][feature] array.
func (t *Tensor) Nested() [][][]float64 {
	if t.Rank() != 3 {
		return nil
	}
	out := make([][][]float64, t.Shape[0])
	for b := range out {
		out[b] = make([][]float64, t.Shape[1])
		for s := range out[b] {
			off := t.offset(b, s, 0)
			out[b][s] = append([]float64(nil), t.Data[off:off+t.Shape[2]]...)
		}
	}
	return out
}
