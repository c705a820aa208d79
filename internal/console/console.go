// Package console implements the serial command console (spec.md §6): a
// line-delimited, case-insensitive command interpreter over an
// io.ReadWriter, so the same implementation serves stdin/stdout in the CLI
// and a net.Conn in a loopback test.
package console

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sarpel/micrelay/internal/conf"
	"github.com/sarpel/micrelay/internal/memmonitor"
	"github.com/sarpel/micrelay/internal/orchestrator"
	"github.com/sarpel/micrelay/internal/stats"
	"github.com/sarpel/micrelay/internal/transport"
)

// Dependencies bundles the live objects STATUS/STATS/HEALTH/CONFIG SHOW
// render from, and the actions CONNECT/DISCONNECT/RESTART perform — no
// separate state is kept by the console itself.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Session      *transport.Session
	Stats        *stats.Block
	Memory       *memmonitor.Monitor
	Settings     *conf.Settings
	Connect      func() error
	Disconnect   func() error
	Restart      func()
}

// Console reads lines from rw on a background goroutine (the vendor-
// provided "serial stack" the tick loop never blocks on, per spec.md §5)
// and exposes them to the cooperative tick loop as a non-blocking poll via
// ServiceOnce.
type Console struct {
	deps Dependencies
	mu   sync.Mutex
	rw   io.ReadWriter
	lines chan string
}

// New constructs a Console bound to rw. Call Start to begin reading.
func New(rw io.ReadWriter, deps Dependencies) *Console {
	return &Console{deps: deps, rw: rw, lines: make(chan string, 8)}
}

// SetOrchestrator binds the orchestrator STATUS reports on, for callers
// that must construct the Console before the orchestrator exists (the
// orchestrator itself takes the Console as a dependency).
func (c *Console) SetOrchestrator(o *orchestrator.Orchestrator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Orchestrator = o
}

// Start launches the background line reader. It returns once the reader
// goroutine is running; the goroutine itself exits when rw returns an error
// (e.g. the connection closes).
func (c *Console) Start() {
	go func() {
		r := bufio.NewReader(c.rw)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case c.lines <- line:
				default:
					// Pending-command queue full: drop rather than block the reader.
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

// ServiceOnce dispatches at most one pending line, never blocking the tick
// loop: it's a non-blocking channel receive.
func (c *Console) ServiceOnce() {
	select {
	case line := <-c.lines:
		c.Dispatch(line)
	default:
	}
}

// Dispatch parses and executes one command line, writing its response to rw.
func (c *Console) Dispatch(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := strings.ToUpper(strings.TrimSpace(line))
	switch {
	case cmd == "STATUS":
		c.writeStatus()
	case cmd == "STATS":
		c.writeStats()
	case cmd == "HEALTH":
		c.writeHealth()
	case cmd == "CONFIG SHOW":
		c.writeConfig()
	case cmd == "CONNECT":
		c.runAction("CONNECT", c.deps.Connect)
	case cmd == "DISCONNECT":
		c.runAction("DISCONNECT", c.deps.Disconnect)
	case cmd == "RESTART":
		fmt.Fprintln(c.rw, "restarting...")
		if c.deps.Restart != nil {
			c.deps.Restart()
		}
	default:
		c.writeHelp()
	}
}

func (c *Console) runAction(name string, fn func() error) {
	if fn == nil {
		fmt.Fprintf(c.rw, "%s: not available\n", name)
		return
	}
	if err := fn(); err != nil {
		fmt.Fprintf(c.rw, "%s: failed: %v\n", name, err)
		return
	}
	fmt.Fprintf(c.rw, "%s: ok\n", name)
}

func (c *Console) writeStatus() {
	state := "unknown"
	if c.deps.Orchestrator != nil {
		state = c.deps.Orchestrator.State().String()
	}
	connected := false
	if c.deps.Session != nil {
		connected = c.deps.Session.IsConnected()
	}
	fmt.Fprintf(c.rw, "state: %s\nconnected: %v\n", state, connected)
}

// writeStats renders the full stats.Snapshot as JSON, so STATS output
// follows the Block's fields without a hand-maintained list; it includes
// OrchestratorTicks, StateTransitions and State, which the Prometheus
// registry (internal/stats.Registry) does not export.
func (c *Console) writeStats() {
	if c.deps.Stats == nil {
		fmt.Fprintln(c.rw, "stats unavailable")
		return
	}
	enc := json.NewEncoder(c.rw)
	enc.SetIndent("", "  ")
	_ = enc.Encode(c.deps.Stats.Snapshot())
}

func (c *Console) writeHealth() {
	if c.deps.Memory == nil {
		fmt.Fprintln(c.rw, "health unavailable")
		return
	}
	m := c.deps.Memory
	fmt.Fprintf(c.rw, "free_heap_last: %d\nfree_heap_peak: %d\nfree_heap_min: %d\ntrend: %s\n",
		m.Last(), m.Peak(), m.Min(), m.TrendNow())
}

func (c *Console) writeConfig() {
	if c.deps.Settings == nil {
		fmt.Fprintln(c.rw, "config unavailable")
		return
	}
	s := c.deps.Settings
	fmt.Fprintf(c.rw, "wifi.ssid: %s\nserver.host: %s\nserver.port: %d\ntcp.chunk_bytes: %d\ni2s.sample_rate: %d\n",
		s.Wifi.SSID, s.Server.Host, s.Server.Port, s.TCP.ChunkBytes, s.I2S.SampleRate)
}

func (c *Console) writeHelp() {
	fmt.Fprintln(c.rw, "commands: STATUS STATS HEALTH \"CONFIG SHOW\" CONNECT DISCONNECT RESTART HELP")
}
