package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpel/micrelay/internal/clock"
	"github.com/sarpel/micrelay/internal/logger"
	"github.com/sarpel/micrelay/internal/stats"
)

func startEchoListener(t *testing.T) (port int, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 4096)
				for {
					_, err := c.Read(buf)
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, func() { _ = ln.Close() }
}

func TestSession_ConnectTransitionsToConnected(t *testing.T) {
	t.Parallel()

	port, stop := startEchoListener(t)
	defer stop()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: port, ChunkBytes: 4})

	err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConnected, s.State())
}

func TestSession_ConnectFailureTransitionsToErrored(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: 1}) // port 1 refuses

	err := s.Connect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateErrored, s.State())
	assert.Equal(t, uint64(1), s.TCPErrorCount())
}

func TestSession_ConnectRecordsStatsCounters(t *testing.T) {
	t.Parallel()

	port, stop := startEchoListener(t)
	defer stop()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: port, ChunkBytes: 4})
	block := stats.NewBlock()
	s.SetStats(block)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, uint64(1), block.TransportReconnects.Load())

	failing := NewSession(log, clk, Config{Host: "127.0.0.1", Port: 1})
	failing.SetStats(block)
	assert.Error(t, failing.Connect(context.Background()))
	assert.Equal(t, uint64(1), block.TCPErrorCount.Load())
}

func TestSession_WriteRejectsWhenNotConnected(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: 9})

	ok := s.Write([]byte("hello"))
	assert.False(t, ok)
}

func TestSession_WriteSucceedsInChunksWhenConnected(t *testing.T) {
	t.Parallel()

	port, stop := startEchoListener(t)
	defer stop()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: port, ChunkBytes: 4})
	require.NoError(t, s.Connect(context.Background()))

	ok := s.Write([]byte("hello world, this is chunked"))
	assert.True(t, ok)
}

func TestSession_WriteRejectsOversizeSanityCap(t *testing.T) {
	t.Parallel()

	port, stop := startEchoListener(t)
	defer stop()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: port, ChunkBytes: 4})
	require.NoError(t, s.Connect(context.Background()))

	oversize := make([]byte, maxWriteSanityBytes+1)
	ok := s.Write(oversize)
	assert.False(t, ok)
}

func TestSession_WriteNilBufferFails(t *testing.T) {
	t.Parallel()

	port, stop := startEchoListener(t)
	defer stop()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: port, ChunkBytes: 4})
	require.NoError(t, s.Connect(context.Background()))

	assert.False(t, s.Write(nil))
}

func TestSession_WriteZeroLengthSucceedsAsNoOp(t *testing.T) {
	t.Parallel()

	port, stop := startEchoListener(t)
	defer stop()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: port, ChunkBytes: 4})
	require.NoError(t, s.Connect(context.Background()))

	assert.True(t, s.Write([]byte{}))
}

func TestSession_DisconnectReturnsToDisconnected(t *testing.T) {
	t.Parallel()

	port, stop := startEchoListener(t)
	defer stop()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	s := NewSession(log, clk, Config{Host: "127.0.0.1", Port: port, ChunkBytes: 4})
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())
}
