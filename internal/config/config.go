// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
)

// EnvPrefix prefixes every environment override, e.g. PKTSTREAM_SERVER_LISTEN.
const EnvPrefix = "PKTSTREAM"

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig     `mapstructure:"server"`
	Capture CaptureConfig    `mapstructure:"capture"`
	Session SessionConfig    `mapstructure:"session"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
	Kafka   KafkaConfig      `mapstructure:"kafka"`
	Log     log.LoggerConfig `mapstructure:"log"`
}

// ServerConfig configures the websocket endpoint consumers connect to.
type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	Path           string        `mapstructure:"path"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"` // empty = any origin
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// CaptureConfig selects and tunes the capture source.
type CaptureConfig struct {
	Source      string        `mapstructure:"source"`     // pcap | afpacket | file
	Interfaces  []string      `mapstructure:"interfaces"` // empty = every device
	SnapLen     int           `mapstructure:"snaplen"`
	Promiscuous bool          `mapstructure:"promiscuous"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	BPFFilter   string        `mapstructure:"bpf_filter"`
	File        string        `mapstructure:"file"`
	BufferMB    int           `mapstructure:"buffer_mb"` // afpacket ring size
}

// SessionConfig tunes the handoff between capture and delivery.
type SessionConfig struct {
	QueueCapacity int           `mapstructure:"queue_capacity"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// KafkaConfig configures the kafka sink used by `watch --sink kafka`.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none | gzip | snappy | lz4
}

// Load reads the configuration. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8000")
	v.SetDefault("server.path", "/ws")
	v.SetDefault("server.allowed_origins", []string{"app://."})
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.shutdown_grace", "5s")

	v.SetDefault("capture.source", "pcap")
	v.SetDefault("capture.interfaces", []string{})
	v.SetDefault("capture.snaplen", 65535)
	v.SetDefault("capture.promiscuous", true)
	v.SetDefault("capture.poll_timeout", "100ms")
	v.SetDefault("capture.bpf_filter", "")
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.buffer_mb", 8)

	v.SetDefault("session.queue_capacity", 512)
	v.SetDefault("session.poll_interval", "100ms")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", "127.0.0.1:9091")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "pktstream")
	v.SetDefault("kafka.batch_timeout", "100ms")
	v.SetDefault("kafka.compression", "snappy")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pattern", log.DefaultPattern)
	v.SetDefault("log.time", log.DefaultTime)
	v.SetDefault("log.caller", false)
	v.SetDefault("log.output", log.OutputStdout)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.filename", "/var/log/pktstream/pktstream.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.compress", true)
}

// Validate rejects configurations the session cannot run with.
func (cfg *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("%w: log.level %q (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}

	switch cfg.Capture.Source {
	case "pcap", "afpacket":
	case "file":
		if cfg.Capture.File == "" {
			return fmt.Errorf("%w: capture.file is required when capture.source=file", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: capture.source %q (must be pcap/afpacket/file)", core.ErrConfigInvalid, cfg.Capture.Source)
	}
	if cfg.Capture.SnapLen <= 0 {
		return fmt.Errorf("%w: capture.snaplen must be positive", core.ErrConfigInvalid)
	}
	if cfg.Capture.PollTimeout <= 0 {
		return fmt.Errorf("%w: capture.poll_timeout must be positive", core.ErrConfigInvalid)
	}

	if cfg.Session.QueueCapacity <= 0 {
		return fmt.Errorf("%w: session.queue_capacity must be positive", core.ErrConfigInvalid)
	}
	if cfg.Session.PollInterval <= 0 {
		return fmt.Errorf("%w: session.poll_interval must be positive", core.ErrConfigInvalid)
	}

	if cfg.Server.Path == "" || !strings.HasPrefix(cfg.Server.Path, "/") {
		return fmt.Errorf("%w: server.path %q must start with /", core.ErrConfigInvalid, cfg.Server.Path)
	}
	if cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("%w: server.write_timeout must be positive", core.ErrConfigInvalid)
	}
	return nil
}
