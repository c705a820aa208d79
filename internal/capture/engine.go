package capture

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/sarpel/micrelay/internal/clock"
	cerrors "github.com/sarpel/micrelay/internal/errors"
	"github.com/sarpel/micrelay/internal/logger"
)

// MaxConsecutiveFailures is the default retry/reinitialization threshold
// from spec.md §4.3.
const MaxConsecutiveFailures = 10

// readTimeout is the bounded-wait DMA read deadline from spec.md §4.3 step 2.
const readTimeout = 1000 * time.Millisecond

// retryDelay is the pause between ReadWithRetry attempts.
const retryDelay = 10 * time.Millisecond

// reinitPause is the pause between cleanup and reinitialize during a full
// reinit cycle.
const reinitPause = 100 * time.Millisecond

// ErrOversize reports a Read call whose output buffer exceeds the engine's
// scratch capacity or has an odd length.
var ErrOversize = cerrors.New(nil).Component("capture").Category(cerrors.CategoryCapture).
	Context("error", "oversize or misaligned output buffer").Build()

// Engine implements the capture read/retry/health-check contract of spec.md
// §4.3 on top of a Device.
type Engine struct {
	log logger.Logger
	clk clock.Clock
	dev Device
	cfg Config

	mu      sync.Mutex
	scratch []int32

	initialized       bool
	consecutiveErrors int
	totalErrors       int
	transientErrors   int
	permanentErrors   int
	reinitCount       int
}

// NewEngine constructs an Engine with the given scratch capacity in samples.
func NewEngine(log logger.Logger, clk clock.Clock, dev Device, cfg Config, scratchCapacity int) *Engine {
	return &Engine{
		log:     log.Module("capture.engine"),
		clk:     clk,
		dev:     dev,
		cfg:     cfg,
		scratch: make([]int32, scratchCapacity),
	}
}

// Initialize installs the underlying device.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.dev.Install(e.cfg); err != nil {
		return err
	}
	e.initialized = true
	return nil
}

// Read performs one read per spec.md §4.3: validate sizing, issue a
// bounded-wait DMA read, classify any failure, and narrow successful 32-bit
// scratch words to little-endian 16-bit samples.
func (e *Engine) Read(out []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(out)%2 != 0 || len(out)/2 > len(e.scratch) {
		return 0, ErrOversize
	}

	nSamples := len(out) / 2
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	n, status, err := e.dev.Read(ctx, e.scratch[:nSamples])
	if status != StatusOK {
		e.recordError(status)
		if err == nil {
			err = cerrors.New(nil).Component("capture").Category(cerrors.CategoryCapture).
				Context("status", int(status)).Build()
		}
		return 0, err
	}
	if n == 0 {
		e.recordError(StatusTimeout)
		return 0, cerrors.New(nil).Component("capture").Category(cerrors.CategoryCapture).
			Context("error", "zero bytes read").Build()
	}

	for i := 0; i < n; i++ {
		sample := int16(uint32(e.scratch[i]) >> 16)
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], uint16(sample))
	}

	e.consecutiveErrors = 0
	return n * 2, nil
}

// recordError accounts one classified failure. Must be called with e.mu held.
func (e *Engine) recordError(status DriverStatus) {
	class := Classify(status)
	e.totalErrors++
	e.consecutiveErrors++
	switch class {
	case ClassTransient:
		e.transientErrors++
	case ClassPermanent:
		e.permanentErrors++
	}
}

// ReadWithRetry calls Read up to maxAttempts times with a retryDelay pause
// between attempts. If consecutiveErrors exceeds MaxConsecutiveFailures at
// any point, it performs a full cleanup+pause+reinitialize cycle and
// retries once more.
func (e *Engine) ReadWithRetry(out []byte, maxAttempts int) (int, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		n, err := e.Read(out)
		if err == nil {
			return n, nil
		}
		lastErr = err

		e.mu.Lock()
		overThreshold := e.consecutiveErrors > MaxConsecutiveFailures
		e.mu.Unlock()

		if overThreshold {
			if reinitErr := e.reinit(); reinitErr != nil {
				return 0, reinitErr
			}
			if n, err := e.Read(out); err == nil {
				return n, nil
			} else {
				lastErr = err
			}
		}

		if attempt < maxAttempts-1 {
			time.Sleep(retryDelay)
		}
	}
	return 0, lastErr
}

func (e *Engine) reinit() error {
	e.log.Warn("consecutive capture failures exceeded threshold, reinitializing device",
		logger.Int("consecutive_errors", e.consecutiveErrors))

	_ = e.dev.Close()
	time.Sleep(reinitPause)

	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()

	if err := e.dev.Install(e.cfg); err != nil {
		return err
	}

	e.mu.Lock()
	e.initialized = true
	e.consecutiveErrors = 0
	e.reinitCount++
	e.mu.Unlock()
	return nil
}

// HealthCheck reports whether the engine is in an acceptable state, per
// spec.md §4.3: unhealthy if uninitialized, if consecutive errors exceed
// half the threshold, or if permanent errors exceed 20% of a total error
// count over 100.
func (e *Engine) HealthCheck() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return false
	}
	if e.consecutiveErrors > MaxConsecutiveFailures/2 {
		return false
	}
	if e.totalErrors > 100 && e.permanentErrors*100/e.totalErrors > 20 {
		return false
	}
	return true
}

// TransientErrors returns the cumulative count of Transient-classified read
// failures, per spec.md §3's capture-read-error breakdown.
func (e *Engine) TransientErrors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transientErrors
}

// PermanentErrors returns the cumulative count of Permanent-classified read
// failures.
func (e *Engine) PermanentErrors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.permanentErrors
}

// ReinitCount returns how many full cleanup+reinitialize cycles the engine
// has performed via ReadWithRetry.
func (e *Engine) ReinitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reinitCount
}

// Close releases the underlying device.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()
	return e.dev.Close()
}
