// Package stats holds the node's live statistics block and exports it via a
// Prometheus registry, using github.com/prometheus/client_golang the way
// the rest of the example pack wires metrics registries (the teacher module
// itself only exercises client_golang from test helpers; this package is
// the first non-test consumer, adopting the standard promauto registration
// pattern).
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Block is the live counters any component may update (its own) and any
// other component may read (stale reads are acceptable per spec.md §5's
// "relaxed semantics" rule).
type Block struct {
	AudioChunksSent        atomic.Uint64
	AudioBytesSent         atomic.Uint64
	AudioReadErrors        atomic.Uint64
	CaptureTransientErrors atomic.Uint64
	CapturePermanentErrors atomic.Uint64
	CaptureReinitCount     atomic.Uint64
	TCPErrorCount          atomic.Uint64
	TransportReconnects    atomic.Uint64
	WirelessRetries        atomic.Uint64
	WirelessReassociations atomic.Uint64
	OrchestratorTicks      atomic.Uint64
	StateTransitions       atomic.Uint64
	LogLinesDropped        atomic.Uint64
	LogLinesEmitted        atomic.Uint64
	AdaptiveSizerAdj       atomic.Uint64

	mu           sync.Mutex
	currentState string
}

// Snapshot is a point-in-time, JSON-serializable copy of Block's counters,
// field-for-field. The console's STATS command renders one directly; the
// Prometheus registry reads the Block's counters through live CounterFuncs
// rather than a periodic snapshot, and omits OrchestratorTicks,
// StateTransitions and State.
type Snapshot struct {
	AudioChunksSent        uint64 `json:"audio_chunks_sent"`
	AudioBytesSent         uint64 `json:"audio_bytes_sent"`
	AudioReadErrors        uint64 `json:"audio_read_errors"`
	CaptureTransientErrors uint64 `json:"capture_transient_errors"`
	CapturePermanentErrors uint64 `json:"capture_permanent_errors"`
	CaptureReinitCount     uint64 `json:"capture_reinit_count"`
	TCPErrorCount          uint64 `json:"tcp_error_count"`
	TransportReconnects    uint64 `json:"transport_reconnects"`
	WirelessRetries        uint64 `json:"wireless_retries"`
	WirelessReassociations uint64 `json:"wireless_reassociations"`
	OrchestratorTicks      uint64 `json:"orchestrator_ticks"`
	StateTransitions       uint64 `json:"state_transitions"`
	LogLinesDropped        uint64 `json:"log_lines_dropped"`
	LogLinesEmitted        uint64 `json:"log_lines_emitted"`
	AdaptiveSizerAdj       uint64 `json:"adaptive_sizer_adjustments"`
	State                  string `json:"state"`
}

// Snapshot copies every counter out as a plain value, for the console's
// STATS command and any other JSON-consuming caller.
func (b *Block) Snapshot() Snapshot {
	return Snapshot{
		AudioChunksSent:        b.AudioChunksSent.Load(),
		AudioBytesSent:         b.AudioBytesSent.Load(),
		AudioReadErrors:        b.AudioReadErrors.Load(),
		CaptureTransientErrors: b.CaptureTransientErrors.Load(),
		CapturePermanentErrors: b.CapturePermanentErrors.Load(),
		CaptureReinitCount:     b.CaptureReinitCount.Load(),
		TCPErrorCount:          b.TCPErrorCount.Load(),
		TransportReconnects:    b.TransportReconnects.Load(),
		WirelessRetries:        b.WirelessRetries.Load(),
		WirelessReassociations: b.WirelessReassociations.Load(),
		OrchestratorTicks:      b.OrchestratorTicks.Load(),
		StateTransitions:       b.StateTransitions.Load(),
		LogLinesDropped:        b.LogLinesDropped.Load(),
		LogLinesEmitted:        b.LogLinesEmitted.Load(),
		AdaptiveSizerAdj:       b.AdaptiveSizerAdj.Load(),
		State:                  b.State(),
	}
}

// NewBlock constructs an empty statistics block.
func NewBlock() *Block { return &Block{currentState: "initializing"} }

// SetState records the orchestrator's current state name for STATUS/STATS
// reporting.
func (b *Block) SetState(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentState = name
}

// State returns the orchestrator's last-recorded state name.
func (b *Block) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState
}

// Registry wraps a Block with a Prometheus registry so the node can expose
// /metrics (or push via a textfile collector) without embedded telemetry
// ever touching disk.
type Registry struct {
	block *Block
	reg   *prometheus.Registry

	chunksSent       prometheus.CounterFunc
	bytesSent        prometheus.CounterFunc
	readErrors       prometheus.CounterFunc
	transientErrors  prometheus.CounterFunc
	permanentErrors  prometheus.CounterFunc
	reinitCount      prometheus.CounterFunc
	tcpErrors        prometheus.CounterFunc
	reconnects       prometheus.CounterFunc
	wifiRetries      prometheus.CounterFunc
	reassociations   prometheus.CounterFunc
	dropped          prometheus.CounterFunc
	emitted          prometheus.CounterFunc
	adaptiveSizerAdj prometheus.CounterFunc
}

// NewRegistry builds and registers Prometheus collectors backed by block's
// atomic counters.
func NewRegistry(block *Block) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{block: block, reg: reg}
	r.chunksSent = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_audio_chunks_sent_total",
		Help: "Total audio chunks successfully written to the transport session.",
	}, func() float64 { return float64(block.AudioChunksSent.Load()) })

	r.bytesSent = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_audio_bytes_sent_total",
		Help: "Total audio bytes successfully written to the transport session.",
	}, func() float64 { return float64(block.AudioBytesSent.Load()) })

	r.readErrors = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_audio_read_errors_total",
		Help: "Total capture read errors, any classification.",
	}, func() float64 { return float64(block.AudioReadErrors.Load()) })

	r.tcpErrors = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_tcp_errors_total",
		Help: "Total transport session errors.",
	}, func() float64 { return float64(block.TCPErrorCount.Load()) })

	r.transientErrors = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_capture_transient_errors_total",
		Help: "Total Transient-classified capture read errors.",
	}, func() float64 { return float64(block.CaptureTransientErrors.Load()) })

	r.permanentErrors = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_capture_permanent_errors_total",
		Help: "Total Permanent-classified capture read errors.",
	}, func() float64 { return float64(block.CapturePermanentErrors.Load()) })

	r.reinitCount = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_capture_reinit_total",
		Help: "Total capture device cleanup+reinitialize cycles performed.",
	}, func() float64 { return float64(block.CaptureReinitCount.Load()) })

	r.reconnects = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_transport_reconnects_total",
		Help: "Total successful transport session connects, including reconnects.",
	}, func() float64 { return float64(block.TransportReconnects.Load()) })

	r.wifiRetries = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_wireless_retries_total",
		Help: "Total wireless association retry attempts.",
	}, func() float64 { return float64(block.WirelessRetries.Load()) })

	r.reassociations = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_wireless_reassociations_total",
		Help: "Total wireless reassociations after a retry.",
	}, func() float64 { return float64(block.WirelessReassociations.Load()) })

	r.dropped = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_log_lines_dropped_total",
		Help: "Total log lines dropped by the rate-limited sink.",
	}, func() float64 { return float64(block.LogLinesDropped.Load()) })

	r.emitted = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_log_lines_emitted_total",
		Help: "Total log lines emitted by the rate-limited sink.",
	}, func() float64 { return float64(block.LogLinesEmitted.Load()) })

	r.adaptiveSizerAdj = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "micrelay_adaptive_sizer_adjustments_total",
		Help: "Total applied adaptive capture buffer size changes.",
	}, func() float64 { return float64(block.AdaptiveSizerAdj.Load()) })

	return r
}

// Gatherer exposes the underlying *prometheus.Registry for an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
