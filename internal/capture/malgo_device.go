package capture

import (
	"context"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"

	cerrors "github.com/sarpel/micrelay/internal/errors"
	"github.com/sarpel/micrelay/internal/logger"
)

// frame is one DMA buffer's worth of raw capture bytes, handed from malgo's
// data callback to the Read-side goroutine.
type frame struct {
	data []int32
}

// MalgoDevice is the production Device backed by gen2brain/malgo. It
// installs a capture-only device at FormatS32 (standing in for the 24-in-32
// I2S frame spec.md §4.3 describes) and feeds malgo's push-style data
// callback into a bounded channel so Read can present the synchronous,
// bounded-wait contract the spec requires on top of a callback-driven
// library — the same shape as the teacher's MalgoSource.onAudioData
// forwarding captured audio to a channel in
// internal/audiocore/sources/malgo/malgo.go.
type MalgoDevice struct {
	log    logger.Logger
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	frames chan frame

	pllDisabled bool
}

// NewMalgoDevice constructs an uninstalled MalgoDevice.
func NewMalgoDevice(log logger.Logger) *MalgoDevice {
	return &MalgoDevice{log: log.Module("capture.malgo")}
}

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	case "windows":
		return malgo.BackendWasapi, nil
	default:
		return malgo.BackendNull, cerrors.New(nil).
			Component("capture").
			Category(cerrors.CategoryCapture).
			Context("os", runtime.GOOS).
			Build()
	}
}

// Install configures and starts the capture device. Per spec.md §4.3, it
// first attempts installation with the audio PLL enabled; on failure it
// retries once with the PLL disabled, logging a degraded-clock-stability
// warning, and zeros the DMA buffer channel either way.
func (d *MalgoDevice) Install(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.installLocked(cfg, true); err != nil {
		d.log.Warn("PLL-enabled install failed, retrying with PLL disabled", logger.Err(err))
		if err2 := d.installLocked(cfg, false); err2 != nil {
			return err2
		}
		d.pllDisabled = true
	}

	// "Zero the DMA buffer after install": the frame channel starts empty,
	// which is the channel-backed equivalent of a zeroed scratch buffer.
	d.frames = make(chan frame, cfg.DMABufferCount)
	return nil
}

func (d *MalgoDevice) installLocked(cfg Config, pllEnabled bool) error {
	backend, err := backendForPlatform()
	if err != nil {
		return err
	}

	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return cerrors.New(err).Component("capture").Category(cerrors.CategoryCapture).
			Context("operation", "init_context").Build()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = uint32(cfg.DMABufferLen)
	deviceConfig.Periods = uint32(cfg.DMABufferCount)
	deviceConfig.Alsa.NoMMap = boolToUint32(!pllEnabled)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSamples []byte, frameCount uint32) {
			d.onAudioData(pSamples, frameCount)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return cerrors.New(err).Component("capture").Category(cerrors.CategoryCapture).
			Context("operation", "init_device").Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return cerrors.New(err).Component("capture").Category(cerrors.CategoryCapture).
			Context("operation", "start_device").Build()
	}

	if d.device != nil {
		d.device.Uninit()
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
	}
	d.ctx = mctx
	d.device = device
	return nil
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (d *MalgoDevice) onAudioData(pSamples []byte, frameCount uint32) {
	words := make([]int32, frameCount)
	for i := range words {
		off := i * 4
		if off+4 > len(pSamples) {
			break
		}
		words[i] = int32(uint32(pSamples[off]) | uint32(pSamples[off+1])<<8 |
			uint32(pSamples[off+2])<<16 | uint32(pSamples[off+3])<<24)
	}

	d.mu.Lock()
	ch := d.frames
	d.mu.Unlock()
	if ch == nil {
		return
	}

	select {
	case ch <- frame{data: words}:
	default:
		// Channel full: drop this newest frame rather than block the audio
		// callback, which would stall the driver.
	}
}

// Read performs one bounded-wait DMA read, filling out with raw 32-bit
// scratch words received from the data callback before ctx is done.
func (d *MalgoDevice) Read(ctx context.Context, out []int32) (int, DriverStatus, error) {
	d.mu.Lock()
	ch := d.frames
	d.mu.Unlock()
	if ch == nil {
		return 0, StatusInvalidState, cerrors.New(nil).Component("capture").
			Category(cerrors.CategoryCapture).Context("error", "device not installed").Build()
	}

	select {
	case f := <-ch:
		n := copy(out, f.data)
		return n, StatusOK, nil
	case <-ctx.Done():
		return 0, StatusTimeout, ctx.Err()
	}
}

// Close stops and releases the device.
func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx = nil
	}
	d.frames = nil
	return nil
}
