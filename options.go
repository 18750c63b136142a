package binaryrpc

import (
	"time"

	"github.com/efecan0/binaryrpc/internal/qos"
)

// QoSLevel selects the outbound reliability tier for App-level sends.
type QoSLevel uint8

const (
	QoSNone        QoSLevel = iota // fire-and-forget
	QoSAtLeastOnce                 // ACK + retry, server-side inbound dedup
	QoSExactlyOnce                 // four-way handshake
)

// ReliableOptions is the programmatic QoS/retry/session configuration
// surface. internal/config.Config's Reliable field mirrors this shape for
// the optional YAML loading path; this struct is the primary surface.
type ReliableOptions struct {
	Level QoSLevel

	// BaseRetryMs / MaxBackoffMs bound the default backoff strategy.
	// Setting Backoff overrides both.
	BaseRetryMs  int64
	MaxBackoffMs int64
	Backoff      qos.BackoffStrategy

	// MaxRetry caps outbound retry attempts; 0 means retry forever.
	MaxRetry uint32

	// SessionTtlMs is the Offline -> destroy delay.
	SessionTtlMs uint64

	// DuplicateTtlMs is the inbound duplicate-suppression window.
	DuplicateTtlMs int64

	// EnableCompression turns on gorilla/websocket's per-message deflate at
	// the upgrader; CompressionThresholdBytes then gates it per outbound
	// frame so small frames skip the compression overhead.
	EnableCompression         bool
	CompressionThresholdBytes int

	// MaxSendQueueSize is the per-connection backpressure cap.
	MaxSendQueueSize int
}

// DefaultReliableOptions matches internal/config.Default()'s Reliable block.
func DefaultReliableOptions() ReliableOptions {
	return ReliableOptions{
		Level:                     QoSAtLeastOnce,
		BaseRetryMs:               50,
		MaxBackoffMs:              30_000,
		MaxRetry:                  0,
		SessionTtlMs:              uint64((24 * time.Hour).Milliseconds()),
		DuplicateTtlMs:            5_000,
		EnableCompression:         false,
		CompressionThresholdBytes: 1024,
		MaxSendQueueSize:          1000,
	}
}

// BackoffOrDefault returns o.Backoff if set, otherwise a LinearBackoff built
// from BaseRetryMs/MaxBackoffMs.
func (o ReliableOptions) BackoffOrDefault() qos.BackoffStrategy {
	if o.Backoff != nil {
		return o.Backoff
	}
	return qos.NewLinearBackoff(
		time.Duration(o.BaseRetryMs)*time.Millisecond,
		time.Duration(o.MaxBackoffMs)*time.Millisecond,
	)
}

// DuplicateTtl returns DuplicateTtlMs as a time.Duration.
func (o ReliableOptions) DuplicateTtl() time.Duration {
	return time.Duration(o.DuplicateTtlMs) * time.Millisecond
}
