package encoder

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/vusic/internal/accel"
	"github.com/inferloop/vusic/pkg/constants"
	"github.com/inferloop/vusic/pkg/errors"
)

// Device identifies where an encoder runs its recurrences.
type Device string

const (
	DeviceHost        Device = constants.DeviceHost
	DeviceAccelerated Device = constants.DeviceAccelerated
)

// DeviceOpener opens an accelerated device. accel.Open is the default.
type DeviceOpener func() (accel.Device, error)

// SelectDevice picks the compute device once. debug forces the host path and
// the opener is not consulted. An opener failure is not an error: the host
// path is selected and the reason logged.
func SelectDevice(debug bool, open DeviceOpener, logger *logrus.Logger) (Device, accel.Device) {
	if logger == nil {
		logger = logrus.New()
	}
	if debug {
		logger.Debug("Debug mode set, using host compute")
		return DeviceHost, nil
	}
	if open == nil {
		return DeviceHost, nil
	}

	dev, err := open()
	if err != nil || dev == nil {
		logger.WithError(err).Info("Accelerated device unavailable, using host compute")
		return DeviceHost, nil
	}

	logger.WithField("adapter", dev.Name()).Info("Using accelerated device")
	return DeviceAccelerated, dev
}

// stepper advances one direction's hidden state by a single frame.
type stepper interface {
	step(x, h *mat.Dense) (*mat.Dense, error)
	release()
}

type hostStepper struct {
	cell *GRUCell
}

func (s hostStepper) step(x, h *mat.Dense) (*mat.Dense, error) {
	return s.cell.Step(x, h), nil
}

func (hostStepper) release() {}

// deviceStepper runs the cell on an accelerated kernel in float32.
type deviceStepper struct {
	kernel accel.Kernel
	batch  int
	hidden int
	xbuf   []float32
	hbuf   []float32
}

func (s *deviceStepper) step(x, h *mat.Dense) (*mat.Dense, error) {
	s.xbuf = denseToFloat32(x, s.xbuf)
	s.hbuf = denseToFloat32(h, s.hbuf)

	out, err := s.kernel.Step(s.xbuf, s.hbuf)
	if err != nil {
		return nil, errors.NewDeviceError("accelerated gru step failed", err)
	}
	if len(out) != s.batch*s.hidden {
		return nil, errors.NewDeviceError("accelerated gru step returned wrong size", nil).
			WithDetails(fmt.Sprintf("got %d values, want %d", len(out), s.batch*s.hidden))
	}

	data := make([]float64, len(out))
	for i, v := range out {
		data[i] = float64(v)
	}
	return mat.NewDense(s.batch, s.hidden, data), nil
}

func (s *deviceStepper) release() {
	s.kernel.Release()
}

// newStepper binds cell to dev for the given batch size, or returns a host
// stepper when dev is nil.
func newStepper(cell *GRUCell, dev accel.Device, batch int) (stepper, error) {
	if dev == nil {
		return hostStepper{cell: cell}, nil
	}
	kernel, err := dev.Bind(toWeights(cell.Parameters()), batch)
	if err != nil {
		return nil, errors.NewDeviceError("failed to bind gru weights", err)
	}
	return &deviceStepper{kernel: kernel, batch: batch, hidden: cell.HiddenSize()}, nil
}

// toWeights converts p to the float32 layout the accelerated kernels read.
func toWeights(p *CellParameters) *accel.GRUWeights {
	in, hid := p.Sizes()
	return &accel.GRUWeights{
		InputSize:  in,
		HiddenSize: hid,
		WeightIH:   denseToFloat32(p.WeightIH, nil),
		WeightHH:   denseToFloat32(p.WeightHH, nil),
		BiasIH:     float64sTo32(p.BiasIH.RawVector().Data, nil),
		BiasHH:     float64sTo32(p.BiasHH.RawVector().Data, nil),
	}
}

func denseToFloat32(m *mat.Dense, dst []float32) []float32 {
	r, c := m.Dims()
	if cap(dst) < r*c {
		dst = make([]float32, r*c)
	}
	dst = dst[:r*c]
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j, v := range row {
			dst[i*c+j] = float32(v)
		}
	}
	return dst
}

func float64sTo32(src []float64, dst []float32) []float32 {
	if cap(dst) < len(src) {
		dst = make([]float32, len(src))
	}
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = float32(v)
	}
	return dst
}
