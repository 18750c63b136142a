// Package config loads the optional YAML configuration surface layered over
// programmatic App construction: a typed Config struct plus field-level
// defaults applied after unmarshal.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QoSLevel is the YAML string form of ReliableOptions.Level.
type QoSLevel string

const (
	QoSNone          QoSLevel = "none"
	QoSAtLeastOnce   QoSLevel = "at_least_once"
	QoSExactlyOnce   QoSLevel = "exactly_once"
)

// Ordinal maps the YAML string form to the root package's QoSLevel uint8
// values (QoSNone=0, QoSAtLeastOnce=1, QoSExactlyOnce=2) without this
// package importing the root package. An unrecognized string falls back to
// QoSNone.
func (l QoSLevel) Ordinal() uint8 {
	switch l {
	case QoSAtLeastOnce:
		return 1
	case QoSExactlyOnce:
		return 2
	default:
		return 0
	}
}

// Config is the YAML-loadable mirror of ReliableOptions plus
// transport bind address, log level, and metrics bind address. Programmatic
// construction of App/ReliableOptions remains the primary surface; this is
// optional sugar layered on top of it.
type Config struct {
	Bind    string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`

	Reliable ReliableOptions `yaml:"reliable"`

	MetricsAddr string `yaml:"metrics_addr"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// ReliableOptions is the YAML-loadable mirror of the root package's
// ReliableOptions.
type ReliableOptions struct {
	Level                     QoSLevel      `yaml:"level"`
	BaseRetryMs               int64         `yaml:"base_retry_ms"`
	MaxBackoffMs              int64         `yaml:"max_backoff_ms"`
	MaxRetry                  uint32        `yaml:"max_retry"`
	SessionTtlMs              uint64        `yaml:"session_ttl_ms"`
	DuplicateTtlMs            int64         `yaml:"duplicate_ttl_ms"`
	EnableCompression         bool          `yaml:"enable_compression"`
	CompressionThresholdBytes int           `yaml:"compression_threshold_bytes"`
	MaxSendQueueSize          int           `yaml:"max_send_queue_size"`
}

// BaseRetry returns BaseRetryMs as a time.Duration.
func (r ReliableOptions) BaseRetry() time.Duration {
	return time.Duration(r.BaseRetryMs) * time.Millisecond
}

// MaxBackoff returns MaxBackoffMs as a time.Duration.
func (r ReliableOptions) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMs) * time.Millisecond
}

// DuplicateTtl returns DuplicateTtlMs as a time.Duration.
func (r ReliableOptions) DuplicateTtl() time.Duration {
	return time.Duration(r.DuplicateTtlMs) * time.Millisecond
}

// Default returns the built-in defaults: AtLeastOnce QoS, 50ms base / 30s max backoff,
// unlimited retry, 24h session TTL, 5s duplicate window, 1000-frame send
// queue cap.
func Default() *Config {
	return &Config{
		Bind:     ":8080",
		LogLevel: "info",
		Reliable: ReliableOptions{
			Level:                     QoSAtLeastOnce,
			BaseRetryMs:               50,
			MaxBackoffMs:              30_000,
			MaxRetry:                  0,
			SessionTtlMs:              uint64((24 * time.Hour).Milliseconds()),
			DuplicateTtlMs:            5_000,
			EnableCompression:         false,
			CompressionThresholdBytes: 1024,
			MaxSendQueueSize:          1000,
		},
		MetricsAddr:    ":9090",
		MetricsEnabled: false,
	}
}

// Load reads a YAML file at path and merges it over Default(), so a config
// file only needs to specify the fields it overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
