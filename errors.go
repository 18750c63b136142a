package binaryrpc

import "errors"

// Sentinel errors surfaced by the public API. These are
// internal Go errors and never cross the wire directly — dispatch failures
// are translated into a protocol.ErrorObj by the dispatch pipeline's
// worker-pool task instead (see internal/dispatch).
var (
	// ErrSessionNotFound is returned when an operation names an unknown sid.
	ErrSessionNotFound = errors.New("binaryrpc: session not found")

	// ErrConnectionClosed is returned by a send attempted on a connection
	// that has already closed.
	ErrConnectionClosed = errors.New("binaryrpc: connection closed")

	// ErrSendQueueOverflow is returned when a connection's backpressure
	// queue exceeds MaxSendQueueSize; the connection is closed alongside it.
	ErrSendQueueOverflow = errors.New("binaryrpc: send queue overflow")

	// ErrDuplicateQoS2ID is returned when a QoS-2 publish reuses an id
	// already present in pubPrepare/pendingResp/qos2Pending.
	ErrDuplicateQoS2ID = errors.New("binaryrpc: qos-2 id already in flight")

	// ErrAppNotRunning is returned by App.Publish when called before Run has
	// started the transport (there is no live connection set to address yet).
	ErrAppNotRunning = errors.New("binaryrpc: app not running")

	// ErrAppAlreadyRunning is returned by App.Run when called twice.
	ErrAppAlreadyRunning = errors.New("binaryrpc: app already running")
)
