// Package transport implements the TCP session manager (spec C7): a state
// machine over a single long-lived connection to the remote receiver, with
// socket-option tuning via golang.org/x/sys/unix (grounded on the raw
// unix.SetsockoptInt calls in the pack's io_uring transport,
// other_examples/momentics-hioload-ws's internal/transport), chunked
// fixed-size writes, and backoff-gated reconnection using
// internal/backoff.
package transport

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/sarpel/micrelay/internal/backoff"
	"github.com/sarpel/micrelay/internal/clock"
	cerrors "github.com/sarpel/micrelay/internal/errors"
	"github.com/sarpel/micrelay/internal/logger"
	"github.com/sarpel/micrelay/internal/stats"
)

// State is the transport session's closed state set, per spec.md §4.6.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateErrored
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "errored"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config holds the session's fixed network parameters.
type Config struct {
	Host            string
	Port            int
	ChunkBytes      int
	WriteTimeoutMs  uint64
	KeepAliveIdleS  int
	KeepAliveIntlS  int
	KeepAliveCountS int
	Backoff         backoff.Config
}

// DefaultChunkBytes matches spec.md §4.8's default receiver chunk size.
const DefaultChunkBytes = 19200

// maxWriteSanityBytes is the write() sanity cap from spec.md §4.6.
const maxWriteSanityBytes = 1 << 20

// Session is the TCP session state machine.
type Session struct {
	log logger.Logger
	clk clock.Clock
	cfg Config
	bk  *backoff.Controller

	retryTimer *clock.IntervalTimer

	mu                    sync.Mutex
	state                 State
	conn                  net.Conn
	tcpErrorCount         uint64
	transitionCount       uint64
	connectionEstablished uint64
	lastSuccessfulWrite   uint64
	nextDelayMs           uint64
	sessionID             string
	stats                 *stats.Block
}

// SetStats binds a stats.Block the session updates directly as its own
// counters change, for callers that construct the block after the session —
// mirrors console.Console.SetOrchestrator's ordering fix.
func (s *Session) SetStats(b *stats.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = b
}

// NewSession constructs a Session in the Disconnected state.
func NewSession(log logger.Logger, clk clock.Clock, cfg Config) *Session {
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = DefaultChunkBytes
	}
	if cfg.WriteTimeoutMs == 0 {
		cfg.WriteTimeoutMs = 5000
	}
	return &Session{
		log:        log.Module("transport.session"),
		clk:        clk,
		cfg:        cfg,
		bk:         backoff.New(cfg.Backoff),
		retryTimer: clock.NewIntervalTimer(clk, 0, false),
	}
}

// State returns the current state under lock.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transitionTo(next State) {
	s.state = next
	s.transitionCount++
}

// ReadyToConnect reports whether the backoff-gated retry timer has expired,
// per spec.md §4.6 "gated by the backoff controller".
func (s *Session) ReadyToConnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected && s.nextDelayMs == 0 {
		return true
	}
	return s.retryTimer.Check()
}

// Connect attempts one connection, applying the socket option tuning from
// spec.md §4.6 step 4 on success.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.transitionTo(StateConnecting)
	s.mu.Unlock()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.cfg.Host, itoa(s.cfg.Port)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.transitionTo(StateErrored)
		s.tcpErrorCount++
		if s.stats != nil {
			s.stats.TCPErrorCount.Add(1)
		}
		delay := s.bk.NextDelay()
		s.nextDelayMs = delay
		s.retryTimer = clock.NewIntervalTimer(s.clk, delay, false)
		s.retryTimer.Start()
		return cerrors.New(err).Component("transport").Category(cerrors.CategoryTransport).
			Context("host", s.cfg.Host).Context("port", s.cfg.Port).Build()
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		applySocketOptions(s.log, tcpConn, s.cfg)
	}

	s.conn = conn
	s.transitionTo(StateConnected)
	s.bk.Reset()
	s.nextDelayMs = 0
	s.sessionID = uuid.NewString()
	now := s.clk.NowMillis()
	s.connectionEstablished = now
	s.lastSuccessfulWrite = now
	if s.stats != nil {
		s.stats.TransportReconnects.Add(1)
	}
	s.log.Info("session established", logger.String("session_id", s.sessionID),
		logger.String("host", s.cfg.Host), logger.Int("port", s.cfg.Port))
	return nil
}

// SessionID returns the correlation id assigned to the current (or most
// recent) connected session, for log correlation across reconnects. Empty
// before the first successful connect.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Write chunks bytes into cfg.ChunkBytes-sized sends, per spec.md §4.6.
func (s *Session) Write(data []byte) bool {
	s.mu.Lock()
	// A nil buffer fails the "non-null buffer" precondition; a non-nil
	// zero-length buffer is a trivial no-op success (spec.md §8's
	// write(_, 0) boundary case) that still requires a Connected session.
	if data == nil || len(data) > maxWriteSanityBytes || s.state != StateConnected {
		if len(data) > maxWriteSanityBytes {
			s.log.Error("write exceeds sanity cap", logger.Int("length", len(data)))
		}
		s.mu.Unlock()
		return false
	}
	if len(data) == 0 {
		s.mu.Unlock()
		return true
	}
	conn := s.conn
	chunkBytes := s.cfg.ChunkBytes
	s.mu.Unlock()

	for offset := 0; offset < len(data); offset += chunkBytes {
		end := offset + chunkBytes
		if end > len(data) {
			end = len(data)
		}
		n, err := conn.Write(data[offset:end])
		if err != nil || n == 0 {
			s.handleTCPError("write")
			return false
		}
	}

	s.mu.Lock()
	s.lastSuccessfulWrite = s.clk.NowMillis()
	s.mu.Unlock()
	return true
}

// handleTCPError increments the error counter, transitions to Errored, and
// force-disconnects a session stale for longer than the write timeout.
func (s *Session) handleTCPError(op string) {
	s.mu.Lock()
	s.tcpErrorCount++
	s.transitionTo(StateErrored)
	stale := clock.Elapsed(s.clk.NowMillis(), s.lastSuccessfulWrite) > s.cfg.WriteTimeoutMs
	st := s.stats
	s.mu.Unlock()

	if st != nil {
		st.TCPErrorCount.Add(1)
	}
	s.log.Warn("tcp error", logger.String("op", op))
	if stale {
		_ = s.Disconnect()
	}
}

// Validate reconciles the stored state with the real socket state, per
// spec.md §4.6's validate().
func (s *Session) Validate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.conn != nil && !isClosed(s.conn)
	if s.state == StateConnected && !live {
		s.transitionTo(StateDisconnected)
	} else if s.state != StateConnected && live {
		s.transitionTo(StateConnected)
	}
}

// IsConnected calls Validate implicitly before reporting state.
func (s *Session) IsConnected() bool {
	s.Validate()
	return s.State() == StateConnected
}

// Disconnect closes the socket and returns to Disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.transitionTo(StateClosing)
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	s.mu.Lock()
	s.transitionTo(StateDisconnected)
	s.mu.Unlock()
	return err
}

// TCPErrorCount returns the cumulative tcp_error_count.
func (s *Session) TCPErrorCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcpErrorCount
}

// TransitionCount returns the cumulative state-transition count.
func (s *Session) TransitionCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionCount
}

// isClosed reports whether the peer has closed the connection, using a
// non-consuming MSG_PEEK read on the raw fd so the reconciliation check in
// Validate never steals bytes from the (write-only) application stream.
func isClosed(conn net.Conn) bool {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return false
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return false
	}

	var peerClosed bool
	_ = raw.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		n, _, err := unixRecvfromPeek(fd, buf)
		if err == nil && n == 0 {
			peerClosed = true
		}
		return true
	})
	return peerClosed
}

func itoa(n int) string { return strconv.Itoa(n) }
