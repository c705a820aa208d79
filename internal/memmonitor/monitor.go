// Package memmonitor implements the memory-pressure monitor (spec C9): a
// fixed-cadence free-heap sampler with peak/min/trend tracking and
// warn/critical/shutdown thresholds, grounded on the teacher module's
// internal/monitor.SystemMonitor.checkMemory (which samples
// mem.VirtualMemory from gopsutil) generalized from a host-level
// used-percent gauge to the embedded free-heap-in-bytes model spec.md §4.9
// describes.
package memmonitor

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sarpel/micrelay/internal/clock"
	"github.com/sarpel/micrelay/internal/logger"
)

// Trend is the dead-banded direction of free-heap change.
type Trend int

const (
	TrendStable Trend = iota
	TrendIncreasing
	TrendDecreasing
)

func (t Trend) String() string {
	switch t {
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	default:
		return "stable"
	}
}

// deadBandBytes suppresses trend noise below this magnitude of change.
const deadBandBytes = 1024

// Config holds the monitor's cadence and thresholds. WarnThreshold and
// CriticalThreshold are in bytes; CriticalThreshold must be strictly less
// than WarnThreshold and strictly greater than zero.
type Config struct {
	SampleIntervalMs  uint64
	WarnThreshold     uint64
	CriticalThreshold uint64
}

// DefaultConfig matches spec.md §4.9's defaults (40 KiB warn, 20 KiB
// critical, 60 s cadence).
func DefaultConfig() Config {
	return Config{
		SampleIntervalMs:  60000,
		WarnThreshold:     40 * 1024,
		CriticalThreshold: 20 * 1024,
	}
}

// Validate enforces 0 < CriticalThreshold < WarnThreshold.
func (c Config) Validate() error {
	if c.CriticalThreshold == 0 || c.CriticalThreshold >= c.WarnThreshold {
		return &ConfigError{}
	}
	return nil
}

// ConfigError reports an invalid threshold ordering.
type ConfigError struct{}

func (e *ConfigError) Error() string {
	return "memmonitor: invalid config, require 0 < critical < warn"
}

// HeapReader returns the current free-heap estimate in bytes. The
// production reader wraps gopsutil's mem.VirtualMemory().Available; tests
// supply a deterministic stub.
type HeapReader func() (uint64, error)

// GopsutilHeapReader reads host-available memory via gopsutil, standing in
// for an embedded free-heap query on a development host.
func GopsutilHeapReader() (uint64, error) {
	info, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return info.Available, nil
}

// Monitor samples free heap on a cadence and tracks peak/min/trend.
type Monitor struct {
	log   logger.Logger
	clk   clock.Clock
	cfg   Config
	read  HeapReader
	timer *clock.IntervalTimer

	last  uint64
	peak  uint64
	min   uint64
	trend Trend
	seen  bool
}

// New constructs a Monitor. cfg must already pass Validate.
func New(log logger.Logger, clk clock.Clock, cfg Config, read HeapReader) *Monitor {
	return &Monitor{
		log:   log.Module("memmonitor"),
		clk:   clk,
		cfg:   cfg,
		read:  read,
		timer: clock.NewIntervalTimer(clk, cfg.SampleIntervalMs, true),
	}
}

// Start arms the sample timer.
func (m *Monitor) Start() { m.timer.Start() }

// ShutdownRequested is returned by Sample when free heap has fallen below
// half the critical threshold, signaling the caller should perform an
// orderly shutdown and reset per spec.md §4.9.
type ShutdownRequested struct {
	FreeBytes uint64
}

func (e *ShutdownRequested) Error() string {
	return "memmonitor: free heap below half the critical threshold, shutdown required"
}

// Sample is a no-op unless the cadence timer has expired. When it samples,
// it updates peak/min/trend, logs at WARN/CRITICAL per threshold, and
// returns a *ShutdownRequested if the emergency half-critical floor is
// breached.
func (m *Monitor) Sample() error {
	if !m.timer.Check() {
		return nil
	}

	free, err := m.read()
	if err != nil {
		m.log.Error("failed to read free heap", logger.Err(err))
		return nil
	}

	m.update(free)

	if m.trend == TrendDecreasing {
		m.log.Warn("free heap trending downward", logger.Any("free_bytes", free))
	}

	switch {
	case free < m.cfg.CriticalThreshold/2:
		m.log.Critical("free heap critically low, initiating shutdown",
			logger.Any("free_bytes", free))
		return &ShutdownRequested{FreeBytes: free}
	case free < m.cfg.CriticalThreshold:
		m.log.Critical("free heap below critical threshold", logger.Any("free_bytes", free))
	case free < m.cfg.WarnThreshold:
		m.log.Warn("free heap below warn threshold", logger.Any("free_bytes", free))
	}
	return nil
}

func (m *Monitor) update(free uint64) {
	if !m.seen {
		m.peak, m.min, m.last, m.seen = free, free, free, true
		return
	}

	if free > m.peak {
		m.peak = free
	}
	if free < m.min {
		m.min = free
	}

	delta := int64(free) - int64(m.last)
	switch {
	case delta > deadBandBytes:
		m.trend = TrendIncreasing
	case delta < -deadBandBytes:
		m.trend = TrendDecreasing
	default:
		m.trend = TrendStable
	}
	m.last = free
}

// Peak, Min, Last, and Trend report the monitor's current accumulated
// state, for the statistics block and serial console.
func (m *Monitor) Peak() uint64  { return m.peak }
func (m *Monitor) Min() uint64   { return m.min }
func (m *Monitor) Last() uint64  { return m.last }
func (m *Monitor) TrendNow() Trend { return m.trend }
