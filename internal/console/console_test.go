package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sarpel/micrelay/internal/stats"
)

type loopback struct {
	in  *strings.Reader
	out *bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func TestDispatch_UnknownCommandPrintsHelp(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := New(&loopback{in: strings.NewReader(""), out: &out}, Dependencies{})
	c.Dispatch("bogus\n")

	assert.Contains(t, out.String(), "commands:")
}

func TestDispatch_StatsRendersBlockCounters(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	block := stats.NewBlock()
	block.AudioChunksSent.Add(42)
	c := New(&loopback{in: strings.NewReader(""), out: &out}, Dependencies{Stats: block})
	c.Dispatch("STATS\n")

	assert.Contains(t, out.String(), `"audio_chunks_sent": 42`)
}

func TestDispatch_ConnectRunsInjectedAction(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	called := false
	c := New(&loopback{in: strings.NewReader(""), out: &out}, Dependencies{
		Connect: func() error { called = true; return nil },
	})
	c.Dispatch("connect\n")

	assert.True(t, called)
	assert.Contains(t, out.String(), "CONNECT: ok")
}

func TestDispatch_IsCaseInsensitive(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := New(&loopback{in: strings.NewReader(""), out: &out}, Dependencies{})
	c.Dispatch("config show\n")

	assert.Contains(t, out.String(), "config unavailable")
}

func TestServiceOnce_NonBlockingWithNoPendingLine(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := New(&loopback{in: strings.NewReader(""), out: &out}, Dependencies{})
	c.ServiceOnce() // must return immediately, not block
	assert.Empty(t, out.String())
}
