package orchestrator

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpel/micrelay/internal/backoff"
	"github.com/sarpel/micrelay/internal/capture"
	"github.com/sarpel/micrelay/internal/clock"
	"github.com/sarpel/micrelay/internal/logger"
	"github.com/sarpel/micrelay/internal/stats"
	"github.com/sarpel/micrelay/internal/transport"
	"github.com/sarpel/micrelay/internal/wireless"
)

func TestAllowed_MatchesTransitionTableShape(t *testing.T) {
	t.Parallel()

	assert.True(t, Allowed(StateInitializing, StateAssociatingWireless))
	assert.True(t, Allowed(StateInitializing, StateErrored))
	assert.False(t, Allowed(StateInitializing, StateStreaming))

	assert.True(t, Allowed(StateStreaming, StateDisconnected))
	assert.True(t, Allowed(StateStreaming, StateConnectingTransport))
	assert.False(t, Allowed(StateStreaming, StateInitializing))

	assert.True(t, Allowed(StateMaintenance, StateInitializing))
	assert.False(t, Allowed(StateMaintenance, StateStreaming))
}

type testRig struct {
	o     *Orchestrator
	clk   *clock.Fake
	radio *wireless.Simulated
	dev   *capture.FakeDevice
}

func newTestOrchestrator(t *testing.T) *testRig {
	t.Helper()
	clk := clock.NewFake()
	log := logger.NewSlog(LevelSilence())

	radio := wireless.NewSimulated()
	sizer := capture.NewAdaptiveSizer(clk, 4096)
	wm := wireless.NewManager(log, clk, radio, wireless.Credentials{SSID: "test", Password: "password"}, sizer)

	session := transport.NewSession(log, clk, transport.Config{
		Host: "127.0.0.1", Port: 1, ChunkBytes: 16,
		Backoff: backoff.Config{MinMs: 100, MaxMs: 1000, Seed: 1},
	})

	dev := capture.NewFakeDevice()
	engine := capture.NewEngine(log, clk, dev, capture.Config{
		SampleRate: 16000, DMABufferCount: 4, DMABufferLen: 512,
	}, 8)

	block := stats.NewBlock()

	o := New(Config{
		Log: log, Clock: clk,
		Wireless: wm, Radio: radio, Session: session, Engine: engine, Sizer: sizer,
		Stats: block, ChunkBytes: 16,
	})
	return &testRig{o: o, clk: clk, radio: radio, dev: dev}
}

func TestOrchestrator_StartsInInitializing(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	assert.Equal(t, StateInitializing, rig.o.State())
}

func TestOrchestrator_TickAdvancesFromInitializingToAssociating(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.Tick(context.Background())
	assert.Equal(t, StateAssociatingWireless, rig.o.State())
}

func TestOrchestrator_AssociatingTimesOutToErrored(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.Tick(context.Background()) // -> AssociatingWireless
	require.Equal(t, StateAssociatingWireless, rig.o.State())

	rig.clk.Advance(stateMaxMs[StateAssociatingWireless] + 1)
	rig.o.Tick(context.Background())
	assert.Equal(t, StateErrored, rig.o.State())
}

func TestOrchestrator_ErroredRecoversToAssociatingAfterDelay(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.transition(StateErrored, TriggerEmergency)

	rig.o.Tick(context.Background())
	assert.Equal(t, StateErrored, rig.o.State(), "recovery delay not yet elapsed")

	rig.clk.Advance(errorRecoveryDelayMs + 1)
	rig.o.Tick(context.Background())
	assert.Equal(t, StateAssociatingWireless, rig.o.State())
}

func TestOrchestrator_ConsecutiveErrorGuardTripsIntoMaintenance(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.transition(StateStreaming, TriggerEmergency)

	for i := 0; i < MaxConsecutiveErrors-1; i++ {
		rig.o.noteError()
		require.Equal(t, StateStreaming, rig.o.State())
	}
	rig.o.noteError()
	assert.Equal(t, StateMaintenance, rig.o.State())
	assert.Equal(t, 0, rig.o.consecutiveErrs)
}

func TestOrchestrator_MaintenanceIsIdleUntilManualReset(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.transition(StateMaintenance, TriggerEmergency)

	rig.clk.Advance(1_000_000)
	rig.o.Tick(context.Background())
	assert.Equal(t, StateMaintenance, rig.o.State())

	assert.True(t, rig.o.transition(StateInitializing, TriggerManual))
	assert.Equal(t, StateInitializing, rig.o.State())
}

func TestOrchestrator_StreamingFallsBackToAssociatingWhenWirelessLost(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.transition(StateStreaming, TriggerEmergency)

	require.NoError(t, rig.radio.Disassociate())

	rig.o.runStreaming(context.Background())
	assert.Equal(t, StateAssociatingWireless, rig.o.State())
}

func TestOrchestrator_StreamingReadErrorCountsTowardGuard(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.transition(StateStreaming, TriggerEmergency)
	require.NoError(t, rig.radio.Associate(context.Background(), wireless.Credentials{}))
	stop := connectRigSession(t, rig)
	defer stop()

	rig.dev.PushStatus(capture.StatusGenericFail, nil)

	rig.o.runStreaming(context.Background())
	assert.Equal(t, StateStreaming, rig.o.State())
	assert.Equal(t, 1, rig.o.consecutiveErrs)
}

func TestOrchestrator_StreamingSucceedsAndClearsErrorsOnWrite(t *testing.T) {
	t.Parallel()
	rig := newTestOrchestrator(t)
	rig.o.consecutiveErrs = 3
	rig.o.transition(StateStreaming, TriggerEmergency)
	require.NoError(t, rig.radio.Associate(context.Background(), wireless.Credentials{}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 16)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	rig.o.session = transport.NewSession(logger.NewSlog(LevelSilence()), clock.NewFake(), transport.Config{
		Host: host, Port: port, ChunkBytes: 16,
		Backoff: backoff.Config{MinMs: 100, MaxMs: 1000, Seed: 1},
	})
	require.NoError(t, rig.o.session.Connect(context.Background()))

	rig.dev.PushFrame(make([]int32, 8))

	rig.o.runStreaming(context.Background())
	assert.Equal(t, StateStreaming, rig.o.State())
	assert.Equal(t, 0, rig.o.consecutiveErrs)
	assert.Equal(t, uint64(1), rig.o.block.AudioChunksSent.Load())
}

// connectRigSession points rig's orchestrator at a session connected to a
// loopback listener that discards what it reads; the returned func closes
// the listener.
func connectRigSession(t *testing.T, rig *testRig) func() {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 16)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	rig.o.session = transport.NewSession(logger.NewSlog(LevelSilence()), clock.NewFake(), transport.Config{
		Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, ChunkBytes: 16,
		Backoff: backoff.Config{MinMs: 100, MaxMs: 1000, Seed: 1},
	})
	require.NoError(t, rig.o.session.Connect(context.Background()))
	return func() { _ = ln.Close() }
}

// LevelSilence returns a level above Critical so NewSlog emits nothing during tests.
func LevelSilence() logger.Level {
	return logger.LevelCritical + 1
}
