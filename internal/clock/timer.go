package clock

// IntervalTimer is a non-blocking expiry test: Check reports whether at
// least Interval milliseconds have elapsed since the timer was last reset,
// without ever sleeping. Embedded control loops poll it on every tick
// instead of blocking a dedicated goroutine per timer.
type IntervalTimer struct {
	clk        Clock
	previous   uint64
	interval   uint64
	running    bool
	autoReset  bool
}

// NewIntervalTimer creates a stopped timer with the given interval.
func NewIntervalTimer(clk Clock, intervalMillis uint64, autoReset bool) *IntervalTimer {
	return &IntervalTimer{clk: clk, interval: intervalMillis, autoReset: autoReset}
}

// Start arms the timer from now.
func (t *IntervalTimer) Start() {
	t.previous = t.clk.NowMillis()
	t.running = true
}

// StartExpired arms the timer already in the expired state, so the very
// next Check returns true. Used to avoid an artificial initial delay the
// first time a retry loop is entered (e.g. first connect attempt).
func (t *IntervalTimer) StartExpired() {
	// Unsigned modular subtraction: when now < interval this wraps, and
	// Elapsed(now, previous) still equals interval.
	t.previous = t.clk.NowMillis() - t.interval
	t.running = true
}

// Stop disarms the timer; Check will return false until Start is called again.
func (t *IntervalTimer) Stop() {
	t.running = false
}

// Running reports whether the timer is currently armed.
func (t *IntervalTimer) Running() bool {
	return t.running
}

// Check reports whether the interval has elapsed. If it has and the timer
// is auto-resetting, previous is advanced to now so the next interval
// starts fresh; otherwise the timer stops.
func (t *IntervalTimer) Check() bool {
	if !t.running {
		return false
	}
	now := t.clk.NowMillis()
	if Elapsed(now, t.previous) < t.interval {
		return false
	}
	if t.autoReset {
		t.previous = now
	} else {
		t.running = false
	}
	return true
}

// Reset re-arms the timer from the current time without changing its
// running/auto-reset configuration.
func (t *IntervalTimer) Reset() {
	t.previous = t.clk.NowMillis()
}

// SetInterval changes the interval used by subsequent Check calls.
func (t *IntervalTimer) SetInterval(intervalMillis uint64) {
	t.interval = intervalMillis
}

// Elapsed returns how many milliseconds have passed since the timer was
// last reset, regardless of whether it is armed.
func (t *IntervalTimer) Elapsed() uint64 {
	return Elapsed(t.clk.NowMillis(), t.previous)
}
