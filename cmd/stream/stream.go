// Package stream implements the "stream" subcommand: it builds every
// injected dependency the orchestrator needs and runs its cooperative tick
// loop until the process is interrupted, the way the teacher module's
// cmd/realtime.Command builds an analysis.RealtimeAnalysis run loop.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sarpel/micrelay/internal/backoff"
	"github.com/sarpel/micrelay/internal/capture"
	"github.com/sarpel/micrelay/internal/clock"
	"github.com/sarpel/micrelay/internal/conf"
	"github.com/sarpel/micrelay/internal/console"
	"github.com/sarpel/micrelay/internal/logger"
	"github.com/sarpel/micrelay/internal/logsink"
	"github.com/sarpel/micrelay/internal/memmonitor"
	"github.com/sarpel/micrelay/internal/orchestrator"
	"github.com/sarpel/micrelay/internal/ota"
	"github.com/sarpel/micrelay/internal/stats"
	"github.com/sarpel/micrelay/internal/transport"
	"github.com/sarpel/micrelay/internal/watchdog"
	"github.com/sarpel/micrelay/internal/wireless"
)

// tickInterval is the cooperative loop's cadence; the orchestrator's own
// per-state timeouts are measured in clock milliseconds, independent of it.
const tickInterval = 20 * time.Millisecond

// maxScratchWords bounds the capture engine's per-call scratch buffer to
// spec.md §3's invariant (≤4096 32-bit-word entries), independent of the
// transport's chunk size; the orchestrator's StagingBuffer absorbs the
// mismatch between this and tcp.chunk_bytes.
const maxScratchWords = 4096

// scratchWordCount derives the capture engine's scratch capacity from the
// configured DMA buffer geometry rather than the transport chunk size.
func scratchWordCount(s *conf.Settings) int {
	n := s.I2S.DMABufCount * s.I2S.DMABufLen
	if n <= 0 || n > maxScratchWords {
		n = maxScratchWords
	}
	return n
}

// Command returns the "stream" command, which captures microphone audio and
// relays it to settings.Server for as long as the process runs.
func Command(settings *conf.Settings) *cobra.Command {
	var configPath string
	var wifiIface string

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Capture microphone audio and relay it to the configured receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				loaded, err := conf.Load(configPath)
				if err != nil {
					return err
				}
				*settings = *loaded
			}
			if err := conf.ValidateAll(settings); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), settings, wifiIface)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&wifiIface, "iface", "", "Linux wireless interface name (empty uses a simulated radio)")
	return cmd
}

func run(ctx context.Context, settings *conf.Settings, wifiIface string) error {
	clk := clock.NewSystem()

	heapReader := func() uint64 {
		free, err := memmonitor.GopsutilHeapReader()
		if err != nil {
			return 0
		}
		return free
	}

	block := stats.NewBlock()
	registry := stats.NewRegistry(block)

	sink := logsink.New(logsink.Config{
		MinLevel:       logger.ParseLevel(settings.Logger.MinLevel),
		MaxLinesPerSec: settings.Logger.MaxLinesPerSec,
		BurstMax:       settings.Logger.BurstMax,
		Block:          block,
	}, logger.NewSlog(logger.LevelDebug), clk, heapReader)
	log := logsink.NewAdapter(sink).Module("micrelay")

	sizer := capture.NewAdaptiveSizer(clk, settings.I2S.BufferBytes)

	var radio wireless.Radio
	if wifiIface != "" {
		radio = wireless.NewLinux(wifiIface)
	} else {
		radio = wireless.NewSimulated()
	}
	wirelessMgr := wireless.NewManager(log, clk, radio,
		wireless.Credentials{SSID: settings.Wifi.SSID, Password: settings.Wifi.Password}, sizer)
	wirelessMgr.SetStats(block)
	if err := wirelessMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting wireless manager: %w", err)
	}

	session := transport.NewSession(log, clk, transport.Config{
		Host:            settings.Server.Host,
		Port:            settings.Server.Port,
		ChunkBytes:      settings.TCP.ChunkBytes,
		WriteTimeoutMs:  settings.TCP.WriteTimeoutMs,
		KeepAliveIdleS:  settings.TCP.KeepaliveIdleS,
		KeepAliveIntlS:  settings.TCP.KeepaliveInterval,
		KeepAliveCountS: settings.TCP.KeepaliveCount,
		Backoff: backoff.Config{
			MinMs:     settings.Server.ReconnectMinMs,
			MaxMs:     settings.Server.ReconnectMaxMs,
			JitterPct: settings.Server.BackoffJitterPct,
		},
	})
	session.SetStats(block)

	scratchWords := scratchWordCount(settings)
	dev := capture.NewMalgoDevice(log)
	engine := capture.NewEngine(log, clk, dev, capture.Config{
		SampleRate:     settings.I2S.SampleRate,
		DMABufferCount: settings.I2S.DMABufCount,
		DMABufferLen:   settings.I2S.DMABufLen,
	}, scratchWords)
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initializing capture engine: %w", err)
	}
	defer engine.Close()

	memCfg := memmonitor.DefaultConfig()
	memCfg.WarnThreshold = settings.Memory.WarnBytes
	memCfg.CriticalThreshold = settings.Memory.CriticalBytes
	if err := memCfg.Validate(); err != nil {
		return fmt.Errorf("memory thresholds: %w", err)
	}
	mem := memmonitor.New(log, clk, memCfg, memmonitor.GopsutilHeapReader)
	mem.Start()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: "127.0.0.1:9464", Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server exited", logger.Err(err))
		}
	}()
	defer metricsSrv.Close()

	wd := watchdog.NewLogging(log)
	cons := console.New(os.Stdin, console.Dependencies{
		Stats:    block,
		Memory:   mem,
		Settings: settings,
		Session:  session,
	})
	cons.Start()

	orch := orchestrator.New(orchestrator.Config{
		Log: log, Clock: clk,
		Watchdog: wd, OTA: ota.NoOp{}, Console: cons,
		Wireless: wirelessMgr, Radio: radio, Session: session, Engine: engine, Sizer: sizer,
		Memory: mem, Stats: block, ChunkBytes: settings.TCP.ChunkBytes,
		ReadBufBytes: scratchWords * 2,
	})
	cons.SetOrchestrator(orch)

	log.Info("micrelay starting", logger.String("server", fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)))

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCtx.Done():
			log.Info("shutdown requested")
			_ = session.Disconnect()
			logsink.FlushSentry()
			return nil
		case <-ticker.C:
			orch.Tick(sigCtx)
		}
	}
}
