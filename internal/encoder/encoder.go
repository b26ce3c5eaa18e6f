// Package encoder implements the bidirectional GRU context encoder used by
// the source separation network. An Encoder runs a forward and a backward
// gated recurrent cell over a sequence of spectral frames and emits, for every
// frame with enough context on both sides, the concatenation of both hidden
// states plus a residual copy of the input frame.
package encoder

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/vusic/internal/accel"
	"github.com/inferloop/vusic/pkg/constants"
	"github.com/inferloop/vusic/pkg/errors"
)

// Config contains the encoder construction options.
type Config struct {
	InputSize     int   `json:"input_size" mapstructure:"input_size"`         // Features per frame and hidden size per direction
	ContextLength int   `json:"context_length" mapstructure:"context_length"` // Frames trimmed from each end
	Debug         bool  `json:"debug" mapstructure:"debug"`                   // Force host compute
	Seed          int64 `json:"seed" mapstructure:"seed"`                     // Initialization seed, 0 for time-based
}

// Validate checks the static configuration fields.
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return errors.NewConfigurationError(errors.CodeInvalidInputSize, constants.ParamInputSize,
			"input_size must be positive").WithContext("value", c.InputSize)
	}
	if c.ContextLength < 0 {
		return errors.NewConfigurationError(errors.CodeInvalidContextLength, constants.ParamContextLength,
			"context_length must not be negative").WithContext("value", c.ContextLength)
	}
	return nil
}

// Recorder receives per-call encoder measurements.
type Recorder interface {
	ObserveEncode(device string, frames int, duration time.Duration, err error)
	ObserveParameterInit()
}

type noopRecorder struct{}

func (noopRecorder) ObserveEncode(string, int, time.Duration, error) {}
func (noopRecorder) ObserveParameterInit()                           {}

type options struct {
	rng      *rand.Rand
	opener   DeviceOpener
	recorder Recorder
}

// Option customizes an Encoder.
type Option func(*options)

// WithRand sets the random source used for parameter initialization. It
// takes precedence over Config.Seed.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithDeviceOpener replaces accel.Open as the accelerated device probe.
func WithDeviceOpener(open DeviceOpener) Option {
	return func(o *options) { o.opener = open }
}

// WithAccelerator offers dev as the accelerated device.
func WithAccelerator(dev accel.Device) Option {
	return WithDeviceOpener(func() (accel.Device, error) {
		if dev == nil {
			return nil, accel.ErrNoDevice
		}
		return dev, nil
	})
}

// WithMetrics reports encode calls to r.
func WithMetrics(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// Encoder is a bidirectional GRU context encoder. Encode is safe for
// concurrent use; InitParameters and LoadStateDict replace the parameter sets
// atomically with respect to running calls.
type Encoder struct {
	logger   *logrus.Logger
	config   Config
	device   Device
	recorder Recorder

	// devMu is held for reading while a call uses accel and for writing by Close.
	devMu sync.RWMutex
	accel accel.Device

	mu       sync.RWMutex
	rng      *rand.Rand
	forward  *GRUCell
	backward *GRUCell
}

// New creates an encoder, draws its parameters and selects the compute device.
func New(config Config, logger *logrus.Logger, opts ...Option) (*Encoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logrus.New()
	}

	o := &options{opener: accel.Open, recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(o)
	}

	if o.rng == nil {
		if config.Seed == 0 {
			config.Seed = time.Now().UnixNano()
		}
		o.rng = rand.New(rand.NewSource(config.Seed))
	}

	e := &Encoder{
		logger:   logger,
		config:   config,
		recorder: o.recorder,
		rng:      o.rng,
	}
	e.device, e.accel = SelectDevice(config.Debug, o.opener, logger)

	if err := e.InitParameters(); err != nil {
		e.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"input_size":     config.InputSize,
		"context_length": config.ContextLength,
		"device":         e.device,
	}).Info("Initialized recurrent encoder")

	return e, nil
}

// FromParams builds an encoder from a loosely typed mapping such as a decoded
// JSON object or a viper settings map. input_size, context_length and debug
// are required; seed is optional.
func FromParams(params map[string]interface{}, logger *logrus.Logger, opts ...Option) (*Encoder, error) {
	for _, key := range constants.RequiredParams {
		if _, ok := params[key]; !ok {
			return nil, errors.NewMissingParameterError(key)
		}
	}

	var config Config
	var err error
	if config.InputSize, err = intParam(params, constants.ParamInputSize); err != nil {
		return nil, err
	}
	if config.ContextLength, err = intParam(params, constants.ParamContextLength); err != nil {
		return nil, err
	}
	if config.Debug, err = boolParam(params, constants.ParamDebug); err != nil {
		return nil, err
	}
	if _, ok := params[constants.ParamSeed]; ok {
		seed, err := intParam(params, constants.ParamSeed)
		if err != nil {
			return nil, err
		}
		config.Seed = int64(seed)
	}

	return New(config, logger, opts...)
}

func intParam(params map[string]interface{}, key string) (int, error) {
	switch v := params[key].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, nil
		}
	}
	return 0, errors.NewInvalidParameterError(key, params[key])
}

func boolParam(params map[string]interface{}, key string) (bool, error) {
	switch v := params[key].(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, nil
		}
	}
	return false, errors.NewInvalidParameterError(key, params[key])
}

// InitParameters draws fresh parameters for both directions, replacing the
// current ones.
func (e *Encoder) InitParameters() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	size := e.config.InputSize
	forward, err := NewGRUCell(NewCellParameters(size, size, e.rng))
	if err != nil {
		return err
	}
	backward, err := NewGRUCell(NewCellParameters(size, size, e.rng))
	if err != nil {
		return err
	}
	e.forward, e.backward = forward, backward
	e.recorder.ObserveParameterInit()
	return nil
}

// Config returns the encoder configuration. Seed holds the effective seed
// unless a random source was supplied with WithRand.
func (e *Encoder) Config() Config { return e.config }

// Device returns the compute device chosen at construction.
func (e *Encoder) Device() Device { return e.device }

// Forward returns the forward-direction cell.
func (e *Encoder) Forward() *GRUCell {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.forward
}

// Backward returns the backward-direction cell.
func (e *Encoder) Backward() *GRUCell {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backward
}

// OutputShape returns the shape Encode produces for the given batch size and
// sequence length.
func (e *Encoder) OutputShape(batch, seqLen int) ([]int, error) {
	c := e.config.ContextLength
	if seqLen <= 2*c {
		return nil, errors.NewSequenceTooShortError(seqLen, c)
	}
	return []int{batch, seqLen - 2*c, 2 * e.config.InputSize}, nil
}

// Close releases the accelerated device, if any. It waits for in-flight
// Encode calls; later calls run on the host.
func (e *Encoder) Close() {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	if e.accel != nil {
		e.accel.Release()
		e.accel = nil
	}
}

// Encode maps input [batch, seq_len, feature_dim] to the context tensor
// [batch, seq_len - 2*context_length, 2*input_size]. Only the first input_size
// features of each frame are read. Output row i holds, for t = i+context_length,
// the forward state after frame t plus frame t, followed by the backward state
// after frame seq_len-1-t plus frame seq_len-1-t.
func (e *Encoder) Encode(ctx context.Context, input *Tensor) (*Tensor, error) {
	start := time.Now()
	out, frames, err := e.encode(ctx, input)
	e.recorder.ObserveEncode(string(e.device), frames, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"batch":    out.Shape[0],
		"seq_len":  input.Shape[1],
		"retained": out.Shape[1],
		"duration": time.Since(start),
	}).Debug("Encoded sequence")

	return out, nil
}

func (e *Encoder) encode(ctx context.Context, input *Tensor) (*Tensor, int, error) {
	if err := e.checkInput(input); err != nil {
		return nil, 0, err
	}

	batch, seqLen, feat := input.Shape[0], input.Shape[1], input.Shape[2]
	size := e.config.InputSize
	shape, err := e.OutputShape(batch, seqLen)
	if err != nil {
		return nil, 0, err
	}

	// Reduced view: frame t as a [batch x input_size] matrix.
	reduced := make([]*mat.Dense, seqLen)
	for t := range reduced {
		m := mat.NewDense(batch, size, nil)
		for b := 0; b < batch; b++ {
			off := (b*seqLen + t) * feat
			copy(m.RawRowView(b), input.Data[off:off+size])
		}
		reduced[t] = m
	}

	e.mu.RLock()
	forward, backward := e.forward, e.backward
	e.mu.RUnlock()

	e.devMu.RLock()
	defer e.devMu.RUnlock()

	fwd, err := newStepper(forward, e.accel, batch)
	if err != nil {
		return nil, 0, err
	}
	defer fwd.release()
	bwd, err := newStepper(backward, e.accel, batch)
	if err != nil {
		return nil, 0, err
	}
	defer bwd.release()

	out := NewTensor(shape...)

	// The directions share no state and write disjoint halves of every
	// output row, so running them concurrently matches the interleaved loop.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.runDirection(gctx, fwd, reduced, out, func(t int) int { return t }, 0)
	})
	g.Go(func() error {
		return e.runDirection(gctx, bwd, reduced, out, func(t int) int { return seqLen - 1 - t }, size)
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return out, batch * shape[1], nil
}

// runDirection advances one recurrence over all frames, reading frame
// frameAt(t) at step t, and writes state+frame into columns
// [col, col+input_size) of every retained output row.
func (e *Encoder) runDirection(ctx context.Context, st stepper, reduced []*mat.Dense, out *Tensor, frameAt func(int) int, col int) error {
	seqLen := len(reduced)
	batch, size := reduced[0].Dims()
	c := e.config.ContextLength

	h := mat.NewDense(batch, size, nil)
	for t := 0; t < seqLen; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		x := reduced[frameAt(t)]
		next, err := st.step(x, h)
		if err != nil {
			return err
		}
		h = next

		if t < c || t >= seqLen-c {
			continue
		}
		i := t - c
		for b := 0; b < batch; b++ {
			hRow := h.RawRowView(b)
			xRow := x.RawRowView(b)
			dst := out.Data[out.offset(b, i, col) : out.offset(b, i, col)+size]
			for j := range dst {
				dst[j] = hRow[j] + xRow[j]
			}
		}
	}
	return nil
}

func (e *Encoder) checkInput(input *Tensor) error {
	if input == nil {
		return errors.NewShapeMismatchError("input tensor is nil")
	}
	if input.Rank() != 3 {
		return errors.NewShapeMismatchError("input must be rank 3 [batch, seq_len, feature_dim], got shape %v", input.Shape)
	}
	batch, seqLen, feat := input.Shape[0], input.Shape[1], input.Shape[2]
	if batch <= 0 || seqLen < 0 {
		return errors.NewShapeMismatchError("invalid batch or sequence dimension in shape %v", input.Shape)
	}
	if feat < e.config.InputSize {
		return errors.NewShapeMismatchError("feature_dim %d is smaller than input_size %d", feat, e.config.InputSize)
	}
	if len(input.Data) != batch*seqLen*feat {
		return errors.NewShapeMismatchError("shape %v needs %d values, got %d", input.Shape, batch*seqLen*feat, len(input.Data))
	}
	return nil
}
