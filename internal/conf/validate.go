package conf

import (
	"fmt"
	"strings"
)

// ValidationError collects every constraint violation found by ValidateAll,
// so a single config mistake doesn't hide the next one (the same
// accumulate-then-report pattern the teacher's conf.Settings validation
// uses for its own multi-field checks).
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "conf: invalid configuration: " + strings.Join(e.Violations, "; ")
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// ValidateAll enforces every bracketed constraint from spec.md §6. Startup
// must call this once, before constructing the orchestrator, and refuse to
// leave Initializing on failure.
func ValidateAll(s *Settings) error {
	var v []string

	if s.Wifi.SSID == "" {
		v = append(v, "wifi.ssid must be non-empty")
	}
	if s.Wifi.Password == "" {
		v = append(v, "wifi.password must be non-empty")
	}

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		v = append(v, fmt.Sprintf("server.port %d out of [1, 65535]", s.Server.Port))
	}
	if s.Server.ReconnectMaxMs < s.Server.ReconnectMinMs {
		v = append(v, "server.reconnect_max_ms must be >= server.reconnect_min_ms")
	}

	if s.TCP.ChunkBytes <= 0 {
		v = append(v, "tcp.chunk_bytes must be positive")
	}

	if s.I2S.SampleRate < 8000 || s.I2S.SampleRate > 48000 {
		v = append(v, fmt.Sprintf("i2s.sample_rate %d out of [8000, 48000]", s.I2S.SampleRate))
	}
	if !isPowerOfTwo(s.I2S.DMABufLen) {
		v = append(v, "i2s.dma_buf_len must be a power of two")
	}
	if s.I2S.BufferBytes <= 0 {
		v = append(v, "i2s.buffer_bytes must be positive")
	}

	if s.Memory.CriticalBytes == 0 || s.Memory.CriticalBytes >= s.Memory.WarnBytes {
		v = append(v, "memory.critical_bytes must be > 0 and < memory.warn_bytes")
	}

	if s.RSSI.WeakThresholdDBm >= 0 {
		v = append(v, "rssi.weak_threshold_dbm must be negative")
	}

	maxSuspensionS := float64(s.TCP.WriteTimeoutMs) / 1000.0
	if float64(s.Watchdog.TimeoutS) <= maxSuspensionS+5 {
		v = append(v, "watchdog.timeout_s must exceed the longest suspension window with >= 5s margin")
	}

	if s.Logger.MaxLinesPerSec <= 0 {
		v = append(v, "logger.max_lines_per_sec must be positive")
	}
	if s.Logger.BurstMax < s.Logger.MaxLinesPerSec {
		v = append(v, "logger.burst_max must be >= logger.max_lines_per_sec")
	}

	hasStatic := s.Wifi.StaticIP != ""
	hasGateway := s.Wifi.Gateway != ""
	hasSubnet := s.Wifi.Subnet != ""
	if hasStatic != hasGateway || hasStatic != hasSubnet {
		v = append(v, "static_ip, gateway, and subnet must be set together or not at all")
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}
