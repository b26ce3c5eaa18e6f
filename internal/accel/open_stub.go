//go:build !gpu

package accel

// Open reports ErrNoDevice; accelerated compute needs -tags=gpu.
func Open() (Device, error) {
	return nil, ErrNoDevice
}
