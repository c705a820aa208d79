package orchestrator

import (
	"context"

	"github.com/sarpel/micrelay/internal/capture"
	cerrors "github.com/sarpel/micrelay/internal/errors"
	"github.com/sarpel/micrelay/internal/logger"
	"github.com/sarpel/micrelay/internal/memmonitor"
	"github.com/sarpel/micrelay/internal/ota"
	"github.com/sarpel/micrelay/internal/stats"
	"github.com/sarpel/micrelay/internal/transport"
	"github.com/sarpel/micrelay/internal/wireless"

	"github.com/sarpel/micrelay/internal/clock"
)

// MaxConsecutiveErrors is the default Orchestrator-Consecutive guard
// threshold from spec.md §4.7.
const MaxConsecutiveErrors = 10

// errorRecoveryDelayMs is the Errored-state wait before retrying, default
// from spec.md §4.7.
const errorRecoveryDelayMs = 5000

// Watchdog abstracts petting the hardware watchdog timer.
type Watchdog interface {
	Pet()
}

// Console abstracts servicing the serial console's background work (reading
// and dispatching any pending line), decoupled from the console package's
// concrete transport so the orchestrator doesn't need an io.ReadWriter.
type Console interface {
	ServiceOnce()
}

// Orchestrator is the top-level tick-driven state machine. Every dependency
// is injected at construction time; there is no package-level mutable
// state.
type Orchestrator struct {
	log   logger.Logger
	clk   clock.Clock
	watch Watchdog
	otaS  ota.Servicer
	cons  Console

	wirelessMgr *wireless.Manager
	radio       wireless.Radio
	session     *transport.Session
	engine      *capture.Engine
	sizer       *capture.AdaptiveSizer
	mem         *memmonitor.Monitor
	block       *stats.Block

	audioReadBuf   []byte
	staging        *capture.StagingBuffer
	chunkBytes     int
	lastStagingCap int

	state           State
	stateEnteredMs  uint64
	consecutiveErrs int
}

// Config bundles the Orchestrator's injected dependencies.
type Config struct {
	Log      logger.Logger
	Clock    clock.Clock
	Watchdog Watchdog
	OTA      ota.Servicer
	Console  Console
	Wireless *wireless.Manager
	Radio    wireless.Radio
	Session  *transport.Session
	Engine   *capture.Engine
	Sizer    *capture.AdaptiveSizer
	Memory   *memmonitor.Monitor
	Stats    *stats.Block

	// ChunkBytes is the transport write chunk size. ReadBufBytes is the
	// capture engine's per-call scratch size; the two are independently
	// sized (capture geometry vs. receiver framing) and the StagingBuffer
	// below absorbs the mismatch between them, per spec.md §4.8.
	ChunkBytes   int
	ReadBufBytes int
}

// New constructs an Orchestrator in the Initializing state.
func New(cfg Config) *Orchestrator {
	chunk := cfg.ChunkBytes
	if chunk == 0 {
		chunk = transport.DefaultChunkBytes
	}
	readBuf := cfg.ReadBufBytes
	if readBuf == 0 {
		readBuf = chunk
	}
	return &Orchestrator{
		log:          cfg.Log.Module("orchestrator"),
		clk:          cfg.Clock,
		watch:        cfg.Watchdog,
		otaS:         cfg.OTA,
		cons:         cfg.Console,
		wirelessMgr:  cfg.Wireless,
		radio:        cfg.Radio,
		session:      cfg.Session,
		engine:       cfg.Engine,
		sizer:        cfg.Sizer,
		mem:          cfg.Memory,
		block:        cfg.Stats,
		audioReadBuf: make([]byte, readBuf),
		staging:      capture.NewStagingBuffer(chunk * 8),
		chunkBytes:   chunk,
		state:        StateInitializing,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// transition applies (o.state -> to) if admissible, or unconditionally for
// Emergency/Manual triggers. It stamps entry time and the transition
// counter; it leaves the consecutive-error guard untouched (only
// clearErrors and the guard tripping reset it).
func (o *Orchestrator) transition(to State, trigger Trigger) bool {
	if trigger == TriggerNormal && !Allowed(o.state, to) {
		o.log.Error("rejected inadmissible transition",
			logger.String("from", o.state.String()), logger.String("to", to.String()))
		return false
	}

	o.log.Info("state transition", logger.String("from", o.state.String()), logger.String("to", to.String()))
	o.state = to
	o.stateEnteredMs = o.clk.NowMillis()
	if o.block != nil {
		o.block.StateTransitions.Add(1)
		o.block.SetState(to.String())
	}
	return true
}

// stateTimedOut reports whether the current state has exceeded its
// per-state maximum from spec.md §4.7 (zero means no timeout).
func (o *Orchestrator) stateTimedOut() bool {
	max, ok := stateMaxMs[o.state]
	if !ok || max == 0 {
		return false
	}
	return clock.Elapsed(o.clk.NowMillis(), o.stateEnteredMs) >= max
}

// Tick runs one iteration of the main tick sequence from spec.md §4.7.
func (o *Orchestrator) Tick(ctx context.Context) {
	if o.block != nil {
		o.block.OrchestratorTicks.Add(1)
	}
	if o.watch != nil {
		o.watch.Pet()
	}
	if o.otaS != nil {
		_ = o.otaS.Service(ctx)
	}
	if o.cons != nil {
		o.cons.ServiceOnce()
	}
	if o.wirelessMgr != nil {
		o.wirelessMgr.Handle(ctx)
		o.wirelessMgr.SignalMonitor()
	}
	if o.mem != nil {
		if err := o.mem.Sample(); err != nil {
			o.log.Critical("memory pressure shutdown requested", logger.Err(err))
			o.shutdownAndReset()
			return
		}
	}

	o.dispatch(ctx)
}

func (o *Orchestrator) shutdownAndReset() {
	if o.session != nil {
		_ = o.session.Disconnect()
	}
	o.transition(StateMaintenance, TriggerEmergency)
}

func (o *Orchestrator) noteError() {
	o.consecutiveErrs++
	if o.consecutiveErrs >= MaxConsecutiveErrors {
		o.log.Critical("consecutive error guard tripped, entering maintenance",
			logger.Int("consecutive_errors", o.consecutiveErrs))
		o.transition(StateMaintenance, TriggerEmergency)
		o.consecutiveErrs = 0
	}
}

func (o *Orchestrator) clearErrors() {
	o.consecutiveErrs = 0
}

func (o *Orchestrator) dispatch(ctx context.Context) {
	switch o.state {
	case StateInitializing:
		o.transition(StateAssociatingWireless, TriggerNormal)

	case StateAssociatingWireless:
		if o.radio != nil && o.radio.IsAssociated() {
			o.transition(StateConnectingTransport, TriggerNormal)
			return
		}
		if o.stateTimedOut() {
			o.transition(StateErrored, TriggerNormal)
		}

	case StateConnectingTransport:
		if o.radio != nil && !o.radio.IsAssociated() {
			o.transition(StateAssociatingWireless, TriggerNormal)
			return
		}
		if o.session == nil {
			return
		}
		if !o.session.ReadyToConnect() {
			return
		}
		if err := o.session.Connect(ctx); err != nil {
			o.noteError()
			return
		}
		o.transition(StateStreaming, TriggerNormal)

	case StateStreaming:
		o.runStreaming(ctx)

	case StateDisconnected:
		o.transition(StateConnectingTransport, TriggerNormal)

	case StateErrored:
		if clock.Elapsed(o.clk.NowMillis(), o.stateEnteredMs) < errorRecoveryDelayMs {
			return
		}
		if o.session != nil {
			_ = o.session.Disconnect()
		}
		o.transition(StateAssociatingWireless, TriggerNormal)

	case StateMaintenance:
		// Idle; no automatic exit per spec.md §4.7.
	}
}

func (o *Orchestrator) runStreaming(ctx context.Context) {
	if o.radio != nil && !o.radio.IsAssociated() {
		if o.session != nil {
			_ = o.session.Disconnect()
		}
		o.transition(StateAssociatingWireless, TriggerNormal)
		return
	}
	if o.session != nil && !o.session.IsConnected() {
		o.transition(StateConnectingTransport, TriggerNormal)
		return
	}

	if o.engine == nil || o.session == nil {
		return
	}

	n, err := o.engine.ReadWithRetry(o.audioReadBuf, capture.MaxConsecutiveFailures)
	if o.block != nil {
		o.block.CaptureTransientErrors.Store(uint64(o.engine.TransientErrors()))
		o.block.CapturePermanentErrors.Store(uint64(o.engine.PermanentErrors()))
		o.block.CaptureReinitCount.Store(uint64(o.engine.ReinitCount()))
	}
	if err != nil {
		o.log.Warn("audio read failed", logger.Err(cerrors.New(err).
			Component("orchestrator").Category(cerrors.CategoryCapture).Build()))
		if o.block != nil {
			o.block.AudioReadErrors.Add(1)
		}
		o.noteError()
		return
	}

	if o.sizer != nil {
		if size := o.sizer.CurrentSize(); size > 0 && size != o.lastStagingCap {
			o.staging.Resize(size)
			o.lastStagingCap = size
		}
		if o.block != nil {
			o.block.AdaptiveSizerAdj.Store(o.sizer.Adjustments())
		}
	}
	if _, err := o.staging.Push(o.audioReadBuf[:n]); err != nil {
		o.log.Warn("staging buffer saturated, dropping captured audio", logger.Err(err))
	}

	for {
		chunk, ok := o.staging.TryDrain(o.chunkBytes)
		if !ok {
			break
		}
		if !o.session.Write(chunk) {
			o.transition(StateConnectingTransport, TriggerNormal)
			o.noteError()
			return
		}
		if o.block != nil {
			o.block.AudioChunksSent.Add(1)
			o.block.AudioBytesSent.Add(uint64(len(chunk)))
		}
	}

	o.clearErrors()
	// "on either outcome, sleep exactly one tick to yield" is the caller's
	// responsibility: Tick is invoked at the configured cadence, so no
	// additional sleep happens here.
}
