// Package watchdog pets the orchestrator's hardware watchdog timer once per
// tick (spec.md §4.7 step 1). The real hardware timer register is outside
// Go's reach; this package preserves the call site the way the teacher
// module's internal/diskmanager preserves a platform call site behind a
// small interface when the underlying syscall isn't portable, and logs at
// debug level instead of touching hardware.
package watchdog

import "github.com/sarpel/micrelay/internal/logger"

// Logging is a Watchdog that logs each pet at debug level rather than
// touching hardware, for platforms without a timer register to arm.
type Logging struct {
	log   logger.Logger
	count uint64
}

// NewLogging constructs a Logging watchdog.
func NewLogging(log logger.Logger) *Logging {
	return &Logging{log: log.Module("watchdog")}
}

// Pet records one watchdog service.
func (l *Logging) Pet() {
	l.count++
	l.log.Debug("watchdog pet", logger.Int("count", int(l.count)))
}

// Count returns how many times Pet has been called, for health reporting.
func (l *Logging) Count() uint64 { return l.count }
