package wstransport

import "errors"

// ErrConnClosed is returned by Publish when the frame could not be handed
// to the connection's send queue because it is already closed.
var ErrConnClosed = errors.New("wstransport: connection closed")

// ErrQueueOverflow is returned by Publish when the connection's send queue
// is already at MaxSendQueueSize; the connection is closed alongside it.
var ErrQueueOverflow = errors.New("wstransport: send queue overflow")

// ErrQoS2InFlight is returned by Publish at LevelExactlyOnce when the
// connection's next outbound id already has QoS-2 bookkeeping in flight.
var ErrQoS2InFlight = errors.New("wstransport: qos-2 id already in flight")

// ErrSessionNotFound is returned by Server.SendToSession when sid names no
// registered session.
var ErrSessionNotFound = errors.New("wstransport: session not found")
