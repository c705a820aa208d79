package capture

import (
	"context"
	"sync"
)

// FakeDevice is a deterministic Device for tests. Queue frames and/or
// statuses via PushFrame/PushStatus; Read drains them in order.
type FakeDevice struct {
	mu        sync.Mutex
	installed bool
	lastCfg   Config
	queue     []fakeResult
	closed    bool
}

type fakeResult struct {
	data   []int32
	status DriverStatus
	err    error
}

// NewFakeDevice constructs an uninstalled FakeDevice.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{}
}

func (f *FakeDevice) Install(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = true
	f.lastCfg = cfg
	return nil
}

// PushFrame enqueues a successful read returning data.
func (f *FakeDevice) PushFrame(data []int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResult{data: data, status: StatusOK})
}

// PushStatus enqueues a failed read with the given status and error.
func (f *FakeDevice) PushStatus(status DriverStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResult{status: status, err: err})
}

func (f *FakeDevice) Read(ctx context.Context, out []int32) (int, DriverStatus, error) {
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.mu.Unlock()
		return 0, StatusTimeout, nil
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	f.mu.Unlock()

	if next.status != StatusOK {
		return 0, next.status, next.err
	}
	n := copy(out, next.data)
	return n, StatusOK, nil
}

func (f *FakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.installed = false
	return nil
}

// Installed reports whether Install has been called more recently than Close.
func (f *FakeDevice) Installed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed
}
