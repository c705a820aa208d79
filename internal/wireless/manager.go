package wireless

import (
	"context"
	"sync"

	"github.com/sarpel/micrelay/internal/backoff"
	"github.com/sarpel/micrelay/internal/capture"
	"github.com/sarpel/micrelay/internal/clock"
	"github.com/sarpel/micrelay/internal/logger"
	"github.com/sarpel/micrelay/internal/stats"
)

// MaxRetries is the default retry counter ceiling before the manager enters
// its bounded exponential safety backoff, per spec.md §4.5.
const MaxRetries = 20

// defaultRetryDelayMs is the initial retry interval timer duration.
const defaultRetryDelayMs = 2000

// safetyBackoffStepMs and safetyBackoffMaxMs bound the post-MAX_RETRIES
// safety backoff: backoff_ms = min(1000*(retry_counter-MAX_RETRIES), 30000).
const (
	safetyBackoffStepMs = 1000
	safetyBackoffMaxMs  = 30000
)

// weakThresholdDBm and warnThresholdDBm are the signal-monitor log
// thresholds from spec.md §4.5.
const (
	weakThresholdDBm = -80
	warnThresholdDBm = -70
)

// signalMonitorIntervalMs is the signal-monitor sampling cadence.
const signalMonitorIntervalMs = 10000

// Manager runs the wireless association state machine and feeds RSSI
// samples to an AdaptiveSizer on a 10s cadence, per spec.md §4.5.
type Manager struct {
	log   logger.Logger
	clk   clock.Clock
	radio Radio
	creds Credentials
	sizer *capture.AdaptiveSizer

	retryTimer    *clock.IntervalTimer
	signalTimer   *clock.IntervalTimer
	safetyBackoff *backoff.Controller

	mu           sync.Mutex
	midRetry     bool
	retryCounter int
	stats        *stats.Block
}

// SetStats binds a stats.Block the manager updates directly as its own
// counters change (spec.md §5: "statistics counters are updated by their
// owning component only"), for callers that construct the block after the
// manager — mirrors console.Console.SetOrchestrator's ordering fix.
func (m *Manager) SetStats(b *stats.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = b
}

// NewManager constructs a Manager. sizer may be nil if adaptive buffering is
// not wired up.
func NewManager(log logger.Logger, clk clock.Clock, radio Radio, creds Credentials, sizer *capture.AdaptiveSizer) *Manager {
	return &Manager{
		log:   log.Module("wireless.manager"),
		clk:   clk,
		radio: radio,
		creds: creds,
		sizer: sizer,
		retryTimer: clock.NewIntervalTimer(clk, defaultRetryDelayMs, true),
		signalTimer: clock.NewIntervalTimer(clk, signalMonitorIntervalMs, true),
		safetyBackoff: backoff.New(backoff.Config{
			MinMs: safetyBackoffStepMs, MaxMs: safetyBackoffMaxMs, JitterPct: 0.1,
		}),
	}
}

// Start begins associating and starts the retry interval timer.
func (m *Manager) Start(ctx context.Context) error {
	m.retryTimer.Start()
	m.signalTimer.Start()
	return m.radio.Associate(ctx, m.creds)
}

// Handle runs one tick of the per-tick association logic from spec.md §4.5.
func (m *Manager) Handle(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.radio.IsAssociated() {
		if m.midRetry {
			m.log.Info("reassociated", logger.Int("retry_counter", m.retryCounter))
			m.midRetry = false
			m.retryCounter = 0
			m.safetyBackoff.Reset()
			if m.stats != nil {
				m.stats.WirelessReassociations.Add(1)
			}
		}
		return
	}

	if !m.retryTimer.Check() {
		return
	}

	_ = m.radio.ResetSocket()
	_ = m.radio.Associate(ctx, m.creds)
	m.midRetry = true
	m.retryCounter++
	if m.stats != nil {
		m.stats.WirelessRetries.Add(1)
	}

	if m.retryCounter > MaxRetries {
		delay := safetyBackoffStepMs * uint64(m.retryCounter-MaxRetries)
		if delay > safetyBackoffMaxMs {
			delay = safetyBackoffMaxMs
		}
		jittered := m.safetyBackoff.Jitter(delay, 0.1)
		m.log.Warn("wireless association retries exceeded maximum, entering safety backoff",
			logger.Int("retry_counter", m.retryCounter))
		m.retryTimer.SetInterval(jittered)
		m.retryCounter = MaxRetries
	}
}

// SignalMonitor samples RSSI on its own cadence, logs at WARN for weak
// signal, and feeds the reading to the adaptive sizer.
func (m *Manager) SignalMonitor() {
	if !m.signalTimer.Check() {
		return
	}

	rssi, err := m.radio.RSSI()
	if err != nil {
		m.log.Warn("RSSI read failed", logger.Err(err))
		return
	}

	if rssi < weakThresholdDBm {
		m.log.Warn("signal weak", logger.Int("rssi_dbm", rssi))
	} else if rssi < warnThresholdDBm {
		m.log.Warn("signal degraded", logger.Int("rssi_dbm", rssi))
	}

	if m.sizer != nil {
		m.sizer.Update(rssi)
	}
}

// RetryCounter reports the current retry counter, for diagnostics/tests.
func (m *Manager) RetryCounter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCounter
}
