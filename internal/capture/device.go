// Package capture implements the DMA-backed microphone capture engine (spec
// C4) and the adaptive buffer sizer (spec C5). The DMA driver itself is
// modeled as the Device interface below so a real malgo-backed
// implementation and a deterministic fake can share one contract, the way
// the teacher module's internal/audiocore abstracts a capture source behind
// an interface in internal/audiocore/sources/malgo.
package capture

import "context"

// DriverStatus is the closed outcome of one Device.Read call, mirroring the
// status codes an embedded I2S driver would return.
type DriverStatus int

const (
	StatusOK DriverStatus = iota
	StatusNoMemory
	StatusInvalidState
	StatusTimeout
	StatusInvalidArg
	StatusNotFound
	StatusGenericFail
	StatusUnknown
)

// FailureClass is the closed classification of a non-OK DriverStatus, per
// spec.md §4.3's error classification table.
type FailureClass int

const (
	ClassNone FailureClass = iota
	ClassTransient
	ClassPermanent
	ClassFatal
)

// Classify maps a DriverStatus to its FailureClass.
func Classify(status DriverStatus) FailureClass {
	switch status {
	case StatusOK:
		return ClassNone
	case StatusNoMemory, StatusInvalidState, StatusTimeout:
		return ClassTransient
	case StatusInvalidArg, StatusNotFound, StatusGenericFail:
		return ClassPermanent
	default:
		return ClassFatal
	}
}

// Config configures a Device at installation time.
type Config struct {
	SampleRate     uint32
	DMABufferCount int
	DMABufferLen   int // words, must be a power of two
	PinBitClock    int
	PinWordSelect  int
	PinDataIn      int
}

// Validate enforces spec.md §4.3's install-time rejection rules.
func (c Config) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return &ConfigError{Reason: "sample_rate out of [8000, 48000]", Value: c.SampleRate}
	}
	if !isPowerOfTwo(c.DMABufferLen) {
		return &ConfigError{Reason: "dma_buffer_len not a power of two", Value: uint32(c.DMABufferLen)}
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// ConfigError reports an invalid capture Config.
type ConfigError struct {
	Reason string
	Value  uint32
}

func (e *ConfigError) Error() string {
	return "capture: invalid config: " + e.Reason
}

// Device is the DMA driver abstraction. Install configures the hardware;
// Read performs one bounded-wait DMA read into out (one int32 per 32-bit
// frame); Close releases the device.
type Device interface {
	Install(cfg Config) error
	Read(ctx context.Context, out []int32) (n int, status DriverStatus, err error)
	Close() error
}
