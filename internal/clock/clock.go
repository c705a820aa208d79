// Package clock provides the single monotonic time source used by every
// timer, backoff controller, and state machine in the node. All interval
// comparisons in this codebase go through Clock so that wraparound and
// testability are handled in one place instead of at every call site.
package clock

import "time"

// Clock returns a monotonically non-decreasing millisecond timestamp.
// Comparisons against values it returns must use unsigned modular
// subtraction (Elapsed), never direct comparison, so a counter wraparound
// on a long-lived embedded process never produces a negative interval.
type Clock interface {
	NowMillis() uint64
}

// System is the production Clock, backed by time.Now's monotonic reading.
type System struct {
	start time.Time
}

// NewSystem returns a Clock anchored at the current time.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) NowMillis() uint64 {
	return uint64(time.Since(s.start).Milliseconds())
}

// Elapsed returns now-previous using unsigned modular subtraction, so a
// wrapped counter still yields the correct (small, positive) interval.
func Elapsed(now, previous uint64) uint64 {
	return now - previous
}
