package wstransport

import (
	"time"

	"github.com/efecan0/binaryrpc/internal/protocol"
	"github.com/efecan0/binaryrpc/internal/qos"
)

// Publish2 starts the outbound QoS-2 four-way handshake: the
// server is always the publisher. Returns false if id bookkeeping already
// exists for this connection's next id, which cannot happen in practice
// since ids are freshly minted here, but the check mirrors the source's
// refuse-on-collision rule for defense against a caller reusing an id.
func (c *Conn) Publish2(payload []byte, backoff qos.BackoffStrategy) (id uint64, ok bool) {
	cs := c.qosState()
	id = cs.NextID()

	cs.Q2Mx.Lock()
	if _, exists := cs.Qos2Pending[id]; exists {
		cs.Q2Mx.Unlock()
		return 0, false
	}
	if _, exists := cs.PubPrepare[id]; exists {
		cs.Q2Mx.Unlock()
		return 0, false
	}
	if _, exists := cs.PendingResp[id]; exists {
		cs.Q2Mx.Unlock()
		return 0, false
	}

	frame := protocol.Encode(protocol.Frame{Type: protocol.FramePrepare, ID: id})
	cs.Qos2Pending[id] = &qos.Q2Meta{
		Stage:       qos.Q2StagePrepare,
		Frame:       frame,
		RetryCount:  0,
		NextRetryAt: time.Now().Add(backoff.NextDelay(1)),
		LastTouched: time.Now(),
	}
	cs.PubPrepare[id] = payload
	cs.Q2Mx.Unlock()

	c.safeSend(frame)
	return id, true
}

// handlePrepareAck advances a QoS-2 publish from Prepare to Commit stage.
// A duplicate PREPARE_ACK while already in Commit stage is a no-op
// (idempotent).
func (c *Conn) handlePrepareAck(id uint64) {
	cs := c.qosState()

	cs.Q2Mx.Lock()
	meta, ok := cs.Qos2Pending[id]
	if !ok || meta.Stage != qos.Q2StagePrepare {
		cs.Q2Mx.Unlock()
		return
	}

	payload, ok := cs.PubPrepare[id]
	if !ok {
		cs.Q2Mx.Unlock()
		return
	}
	delete(cs.PubPrepare, id)
	cs.PendingResp[id] = payload

	commitFrame := protocol.Encode(protocol.Frame{Type: protocol.FrameCommit, ID: id})
	meta.Stage = qos.Q2StageCommit
	meta.Frame = commitFrame
	meta.RetryCount = 0
	meta.NextRetryAt = time.Now().Add(c.server.opts.BackoffOrDefault().NextDelay(1))
	meta.LastTouched = time.Now()
	cs.Q2Mx.Unlock()

	c.safeSend(commitFrame)
}

// handleComplete finishes the QoS-2 handshake: erase the
// tracking entry, emit the buffered payload as a DATA frame. A duplicate
// COMPLETE is idempotent (already erased).
func (c *Conn) handleComplete(id uint64) {
	cs := c.qosState()

	cs.Q2Mx.Lock()
	meta, ok := cs.Qos2Pending[id]
	if !ok || meta.Stage != qos.Q2StageCommit {
		cs.Q2Mx.Unlock()
		return
	}
	payload, ok := cs.PendingResp[id]
	delete(cs.Qos2Pending, id)
	delete(cs.PendingResp, id)
	cs.Q2Mx.Unlock()

	if !ok {
		return
	}

	dataFrame := protocol.Encode(protocol.Frame{Type: protocol.FrameData, ID: id, Payload: payload})
	c.safeSend(dataFrame)
}
