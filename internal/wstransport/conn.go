// Package wstransport implements the WebSocket transport that accepts
// connections, drives the per-connection QoS state machine (internal/qos),
// and marshals inbound DATA frames to the dispatch pipeline. It follows a
// gorilla/websocket Client/Server split: a sendCh-backed writePump
// goroutine per connection, uuid connection ids, and
// SetReadDeadline/pong-driven keepalive.
package wstransport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efecan0/binaryrpc/internal/metrics"
	"github.com/efecan0/binaryrpc/internal/protocol"
	"github.com/efecan0/binaryrpc/internal/qos"
	"github.com/efecan0/binaryrpc/internal/session"
)

const (
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 54 * time.Second
	sendBufferSize = 256
)

// Level mirrors binaryrpc.QoSLevel without importing the root package
// (which itself imports wstransport), keeping the dependency graph acyclic.
type Level uint8

const (
	LevelNone Level = iota
	LevelAtLeastOnce
	LevelExactlyOnce
)

// Conn is the transport's owned per-connection struct: no hidden pointers,
// keyed by its own id, held by the Server's connection set and referenced
// (opaquely, as session.ConnHandle) from the bound Session.
type Conn struct {
	id         string
	ws         *websocket.Conn
	remoteAddr string

	server *Server

	mu       sync.RWMutex
	sess     *session.Session
	closed   bool
	sendCh   chan []byte
	done     chan struct{}
	sendQMax int

	compressionEnabled   bool
	compressionThreshold int

	log *slog.Logger
	met metrics.Recorder
}

func newConn(id string, ws *websocket.Conn, remoteAddr string, srv *Server) *Conn {
	qmax := srv.opts.MaxSendQueueSize
	if qmax <= 0 {
		qmax = sendBufferSize
	}
	c := &Conn{
		id:                    id,
		ws:                    ws,
		remoteAddr:            remoteAddr,
		server:                srv,
		sendCh:                make(chan []byte, qmax),
		done:                  make(chan struct{}),
		sendQMax:              qmax,
		compressionEnabled:    srv.opts.EnableCompression,
		compressionThreshold:  srv.opts.CompressionThresholdBytes,
		log:                   srv.log,
		met:                   srv.met,
	}
	return c
}

// ID returns the connection's unique id.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Session returns the session currently bound to this connection.
func (c *Conn) Session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

func (c *Conn) bindSession(s *session.Session) {
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
}

// IsAlive reports whether the connection has not yet been closed.
func (c *Conn) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// safeSend is the transport-side write primitive. The event loop never blocks on user locks: writes are
// handed to the connection's own sendCh, drained by writePump on a
// dedicated goroutine — the Go-idiomatic equivalent of "posts work to the
// event-loop thread; it does not block the caller for I/O". If sendCh is
// already at MaxSendQueueSize capacity, the frame is rejected and the
// connection is closed with an overflow reason.
//
// sendCh is never closed (CloseWithReason signals writePump via the
// separate done channel instead), so a send racing a concurrent close can
// only land in a channel nobody drains anymore — never a panic on a closed
// channel.
func (c *Conn) safeSend(frame []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnClosed
	}
	ch := c.sendCh
	c.mu.RUnlock()

	select {
	case ch <- frame:
		c.trackEnqueued(len(frame))
		return nil
	default:
		c.log.Warn("send queue overflow, closing connection", "connId", c.id, "cap", c.sendQMax)
		c.CloseWithReason(websocket.ClosePolicyViolation, "send queue overflow")
		return ErrQueueOverflow
	}
}

// Broadcast implements rpcregistry.Responder: fire-and-forget to every
// currently connected client, QoS-0 semantics regardless of the
// connection's configured reliability level.
func (c *Conn) Broadcast(payload []byte) error {
	return c.server.Broadcast(payload)
}

// PublishTo implements rpcregistry.Responder: sends payload to another
// session by id, at the server's configured reliability level, letting a
// handler address a session other than its own caller.
func (c *Conn) PublishTo(sid string, payload []byte) (uint64, error) {
	return c.server.SendToSession(sid, payload, c.server.opts.Level, c.server.opts.BackoffOrDefault())
}

// Disconnect implements rpcregistry.Responder: closes the connection this
// RPC call arrived on.
func (c *Conn) Disconnect() error {
	c.CloseWithReason(websocket.CloseNormalClosure, "")
	return nil
}

// SendData writes payload as a QoS-0 DATA frame — no id tracking.
func (c *Conn) SendData(payload []byte) bool {
	id := c.qosState().NextID()
	frame := protocol.Encode(protocol.Frame{Type: protocol.FrameData, ID: id, Payload: payload})
	return c.safeSend(frame) == nil
}

// Send1 implements outbound QoS-1 send1: allocate an id,
// build DATA(id, payload), register it as unacknowledged, attempt an
// immediate write.
func (c *Conn) Send1(payload []byte, backoff qos.BackoffStrategy) uint64 {
	cs := c.qosState()
	id := cs.NextID()
	frame := protocol.Encode(protocol.Frame{Type: protocol.FrameData, ID: id, Payload: payload})

	cs.PendMx.Lock()
	cs.Pending1[id] = &qos.FrameInfo{
		Frame:       frame,
		RetryCount:  0,
		NextRetryAt: time.Now().Add(backoff.NextDelay(1)),
	}
	cs.PendMx.Unlock()

	c.safeSend(frame)
	return id
}

// Publish sends payload at the given reliability level, the single
// send path App.Publish funnels every configured QoSLevel through:
// LevelNone writes and forgets, LevelAtLeastOnce registers the frame for
// ACK-driven retry, LevelExactlyOnce starts the four-way handshake.
func (c *Conn) Publish(payload []byte, level Level, backoff qos.BackoffStrategy) (id uint64, err error) {
	switch level {
	case LevelAtLeastOnce:
		return c.Send1(payload, backoff), nil
	case LevelExactlyOnce:
		id, ok := c.Publish2(payload, backoff)
		if !ok {
			return 0, ErrQoS2InFlight
		}
		return id, nil
	default:
		nid := c.qosState().NextID()
		frame := protocol.Encode(protocol.Frame{Type: protocol.FrameData, ID: nid, Payload: payload})
		if err := c.safeSend(frame); err != nil {
			return 0, err
		}
		return 0, nil
	}
}

func (c *Conn) qosState() *qos.ConnState {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	return sess.QosState
}

// handleAck implements inbound ACK(id): erase pending1[id];
// unknown ids are logged and dropped.
func (c *Conn) handleAck(id uint64) {
	cs := c.qosState()
	cs.PendMx.Lock()
	_, ok := cs.Pending1[id]
	delete(cs.Pending1, id)
	cs.PendMx.Unlock()

	if !ok {
		c.log.Debug("ack for unknown id, dropped", "connId", c.id, "id", id)
	}
}

// handleData implements inbound QoS-1 server-side dedup.
// dispatch is invoked with the accepted payload; it is never called for a
// duplicate.
func (c *Conn) handleData(id uint64, payload []byte, ttl time.Duration, dispatch func(payload []byte, s *session.Session, responder Responder)) {
	// Step 1: send ACK immediately, best-effort.
	ack := protocol.Encode(protocol.Frame{Type: protocol.FrameAck, ID: id})
	c.safeSend(ack)

	sess := c.Session()
	if sess == nil {
		return
	}

	// Step 2: consult the Session's duplicate filter.
	if !sess.AcceptDuplicate(payload, ttl) {
		if c.met != nil {
			c.met.DuplicateRejected()
		}
		return
	}

	sess.QosState.MarkSeen(id, ttl)

	// Step 3: dispatch.
	dispatch(payload, sess, c)
}

// Responder is the write-back capability the dispatch pipeline needs from a
// connection: Broadcast/Disconnect mirror rpcregistry.Responder (duplicated
// to avoid an import cycle), and Reply is the targeted, single-connection
// send a handler's response travels over.
type Responder interface {
	Broadcast(payload []byte) error
	Disconnect() error
	Reply(payload []byte) bool
	PublishTo(sid string, payload []byte) (uint64, error)
}

// Reply sends payload back over this connection as a QoS-0 DATA frame. RPC
// replies do not inherit the inbound message's QoS tier: the request's own
// delivery guarantee is already satisfied by the ACK/handshake it received
// on the way in, so the reply itself is fire-and-forget.
func (c *Conn) Reply(payload []byte) bool {
	return c.SendData(payload)
}

// CloseWithReason closes the underlying WebSocket with the given close code
// and reason, and tears down connection-side bookkeeping. Safe to call more
// than once.
func (c *Conn) CloseWithReason(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	close(c.done)
	_ = c.ws.Close()

	c.server.onConnClosed(c)
}

// writePump drains sendCh to the socket and pings on an interval.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.sendCh:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if c.compressionEnabled {
				c.ws.EnableWriteCompression(len(frame) >= c.compressionThreshold)
			}
			err := c.ws.WriteMessage(websocket.BinaryMessage, frame)
			c.trackDequeued(len(frame))
			if err != nil {
				c.CloseWithReason(websocket.CloseAbnormalClosure, "write error")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.CloseWithReason(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

// readPump reads frames off the socket until it errs or closes, dispatching
// each by frame type.
func (c *Conn) readPump(dispatch func(payload []byte, s *session.Session, responder Responder)) {
	defer c.CloseWithReason(websocket.CloseNormalClosure, "")

	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	ttl := c.server.opts.DuplicateTtl()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue // non-binary messages are ignored
		}
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		frame, ok := protocol.DecodeFrame(data)
		if !ok {
			continue // frames < 9 bytes are ignored
		}

		switch frame.Type {
		case protocol.FrameData:
			c.handleData(frame.ID, frame.Payload, ttl, dispatch)
		case protocol.FrameAck:
			c.handleAck(frame.ID)
		case protocol.FramePrepareAck:
			c.handlePrepareAck(frame.ID)
		case protocol.FrameComplete:
			c.handleComplete(frame.ID)
		default:
			c.log.Debug("unexpected inbound frame type, ignored", "connId", c.id, "type", frame.Type)
		}
	}
}
