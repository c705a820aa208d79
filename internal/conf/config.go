// Package conf defines the node's configuration surface (spec.md §6) and
// its boot-time validator, loaded through spf13/viper the way the teacher
// module's internal/conf loads BirdNET-Go's settings, generalized from a
// sound-analysis config tree to the device's wifi/server/tcp/i2s/memory/
// rssi/watchdog/logger key set.
package conf

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// WifiSettings holds association credentials and optional static networking.
// Each field carries matching mapstructure/yaml tags so a file written by
// WriteDefault round-trips back through Load unchanged.
type WifiSettings struct {
	SSID     string `mapstructure:"ssid" yaml:"ssid"`
	Password string `mapstructure:"password" yaml:"password"`
	StaticIP string `mapstructure:"static_ip" yaml:"static_ip"`
	Gateway  string `mapstructure:"gateway" yaml:"gateway"`
	Subnet   string `mapstructure:"subnet" yaml:"subnet"`
	DNS      string `mapstructure:"dns" yaml:"dns"`
}

// ServerSettings holds the TCP destination and backoff schedule.
type ServerSettings struct {
	Host             string  `mapstructure:"host" yaml:"host"`
	Port             int     `mapstructure:"port" yaml:"port"`
	ReconnectMinMs   uint64  `mapstructure:"reconnect_min_ms" yaml:"reconnect_min_ms"`
	ReconnectMaxMs   uint64  `mapstructure:"reconnect_max_ms" yaml:"reconnect_max_ms"`
	BackoffJitterPct float64 `mapstructure:"backoff_jitter_pct" yaml:"backoff_jitter_pct"`
}

// TCPSettings holds write-path and keep-alive tuning.
type TCPSettings struct {
	WriteTimeoutMs    uint64 `mapstructure:"write_timeout_ms" yaml:"write_timeout_ms"`
	ChunkBytes        int    `mapstructure:"chunk_bytes" yaml:"chunk_bytes"`
	KeepaliveIdleS    int    `mapstructure:"keepalive_idle_s" yaml:"keepalive_idle_s"`
	KeepaliveInterval int    `mapstructure:"keepalive_interval_s" yaml:"keepalive_interval_s"`
	KeepaliveCount    int    `mapstructure:"keepalive_count" yaml:"keepalive_count"`
}

// I2SSettings holds capture geometry.
type I2SSettings struct {
	SampleRate     uint32 `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferBytes    int    `mapstructure:"buffer_bytes" yaml:"buffer_bytes"`
	DMABufCount    int    `mapstructure:"dma_buf_count" yaml:"dma_buf_count"`
	DMABufLen      int    `mapstructure:"dma_buf_len" yaml:"dma_buf_len"`
	MaxReadRetries int    `mapstructure:"max_read_retries" yaml:"max_read_retries"`
}

// MemorySettings holds free-heap thresholds.
type MemorySettings struct {
	WarnBytes     uint64 `mapstructure:"warn_bytes" yaml:"warn_bytes"`
	CriticalBytes uint64 `mapstructure:"critical_bytes" yaml:"critical_bytes"`
}

// RSSISettings holds the signal-warning threshold.
type RSSISettings struct {
	WeakThresholdDBm int `mapstructure:"weak_threshold_dbm" yaml:"weak_threshold_dbm"`
}

// WatchdogSettings holds the hardware watchdog timeout.
type WatchdogSettings struct {
	TimeoutS int `mapstructure:"timeout_s" yaml:"timeout_s"`
}

// LoggerSettings holds the rate-limited sink's tuning.
type LoggerSettings struct {
	MaxLinesPerSec int    `mapstructure:"max_lines_per_sec" yaml:"max_lines_per_sec"`
	BurstMax       int    `mapstructure:"burst_max" yaml:"burst_max"`
	MinLevel       string `mapstructure:"min_level" yaml:"min_level"`
}

// Settings is the root configuration object, populated by Load.
type Settings struct {
	Wifi     WifiSettings     `mapstructure:"wifi" yaml:"wifi"`
	Server   ServerSettings   `mapstructure:"server" yaml:"server"`
	TCP      TCPSettings      `mapstructure:"tcp" yaml:"tcp"`
	I2S      I2SSettings      `mapstructure:"i2s" yaml:"i2s"`
	Memory   MemorySettings   `mapstructure:"memory" yaml:"memory"`
	RSSI     RSSISettings     `mapstructure:"rssi" yaml:"rssi"`
	Watchdog WatchdogSettings `mapstructure:"watchdog" yaml:"watchdog"`
	Logger   LoggerSettings   `mapstructure:"logger" yaml:"logger"`
}

// setDefaults installs every spec.md default onto v before unmarshal, the
// same SetDefault-per-key pattern the teacher's config loader uses.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.reconnect_min_ms", 5000)
	v.SetDefault("server.reconnect_max_ms", 60000)
	v.SetDefault("server.backoff_jitter_pct", 0.1)
	v.SetDefault("tcp.write_timeout_ms", 5000)
	v.SetDefault("tcp.chunk_bytes", 19200)
	v.SetDefault("tcp.keepalive_idle_s", 5)
	v.SetDefault("tcp.keepalive_interval_s", 5)
	v.SetDefault("tcp.keepalive_count", 3)
	v.SetDefault("i2s.sample_rate", 16000)
	v.SetDefault("i2s.buffer_bytes", 19200)
	v.SetDefault("i2s.dma_buf_count", 8)
	v.SetDefault("i2s.dma_buf_len", 256)
	v.SetDefault("i2s.max_read_retries", 10)
	v.SetDefault("memory.warn_bytes", 40*1024)
	v.SetDefault("memory.critical_bytes", 20*1024)
	v.SetDefault("rssi.weak_threshold_dbm", -80)
	v.SetDefault("watchdog.timeout_s", 45)
	v.SetDefault("logger.max_lines_per_sec", 5)
	v.SetDefault("logger.burst_max", 20)
	v.SetDefault("logger.min_level", "info")
}

// Load reads configuration from path (if non-empty), environment variables
// prefixed MICRELAY_, and defaults, in that order of precedence.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MICRELAY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("conf: reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("conf: unmarshalling config: %w", err)
	}
	return &s, nil
}

// WriteDefault writes a commented-free YAML rendering of the built-in
// defaults to path, for the "config init" CLI command to hand an operator a
// starting file to edit. Uses gopkg.in/yaml.v3 the same way the teacher
// module's internal/httpcontroller/updateconfig.go marshals Settings back
// to disk, simplified here to a full-document Marshal rather than an
// in-place yaml.Node edit since there is no existing file to preserve.
func WriteDefault(path string) error {
	defaults, err := Load("")
	if err != nil {
		return fmt.Errorf("conf: building defaults: %w", err)
	}
	out, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("conf: marshalling defaults: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("conf: writing %s: %w", path, err)
	}
	return nil
}
