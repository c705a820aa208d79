package capture

import (
	"sync"

	"github.com/sarpel/micrelay/internal/clock"
)

// minBufferBytes is the floor below which AdaptiveSizer never shrinks the
// buffer, per spec.md §4.4.
const minBufferBytes = 256

// updateIntervalMs is the minimum spacing between applied size changes.
const updateIntervalMs = 5000

// changeThresholdPct is the minimum fractional change (of the prior size)
// required before a new size is applied and logged.
const changeThresholdPct = 0.10

// AdaptiveSizer implements spec.md §4.4: a piecewise-constant mapping from
// RSSI to a fraction of a base buffer size, rate-limited to one update per
// updateIntervalMs and gated by a minimum relative change. It is grounded on
// the same threshold/hysteresis shape as the teacher's
// internal/monitor.SystemMonitor alert-state debouncing, adapted from
// resource-usage thresholds to an RSSI-to-buffer-share table.
type AdaptiveSizer struct {
	clk      clock.Clock
	baseSize int

	mu           sync.Mutex
	currentSize  int
	lastUpdateMs uint64
	everUpdated  bool
	adjustments  uint64
}

// NewAdaptiveSizer constructs a sizer starting at the full base size.
func NewAdaptiveSizer(clk clock.Clock, baseSize int) *AdaptiveSizer {
	return &AdaptiveSizer{
		clk:         clk,
		baseSize:    baseSize,
		currentSize: baseSize,
	}
}

// shareForRSSI maps an RSSI reading (dBm) to a buffer share, per the
// spec.md §4.4 table.
func shareForRSSI(rssi int) float64 {
	switch {
	case rssi >= -60:
		return 1.0
	case rssi >= -70:
		return 0.8
	case rssi >= -80:
		return 0.6
	case rssi >= -90:
		return 0.4
	default:
		return 0.2
	}
}

// Update samples a new RSSI reading and, if the update cadence and change
// threshold both permit it, applies and returns the new buffer size. It
// returns the current size and whether a change was applied.
func (s *AdaptiveSizer) Update(rssi int) (size int, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.NowMillis()
	if s.everUpdated && clock.Elapsed(now, s.lastUpdateMs) < updateIntervalMs {
		return s.currentSize, false
	}

	candidate := int(float64(s.baseSize) * shareForRSSI(rssi))
	if candidate < minBufferBytes {
		candidate = minBufferBytes
	}

	delta := candidate - s.currentSize
	if delta < 0 {
		delta = -delta
	}
	if s.currentSize != 0 && float64(delta)/float64(s.currentSize) < changeThresholdPct {
		s.lastUpdateMs = now
		s.everUpdated = true
		return s.currentSize, false
	}

	s.currentSize = candidate
	s.lastUpdateMs = now
	s.everUpdated = true
	s.adjustments++
	return s.currentSize, true
}

// CurrentSize returns the last applied buffer size.
func (s *AdaptiveSizer) CurrentSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize
}

// Adjustments returns the cumulative count of applied size changes, for
// telemetry.
func (s *AdaptiveSizer) Adjustments() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustments
}
