package wstransport

// This file hooks safeSend's enqueue/dequeue into ConnState.queuedBytes,
// exposed for metrics and diagnostics without changing safeSend's
// close-on-overflow behavior in conn.go, which is driven by sendCh's own
// channel capacity.

// trackEnqueued records payload bytes as queued once a frame is accepted
// onto sendCh.
func (c *Conn) trackEnqueued(n int) {
	sess := c.Session()
	if sess == nil {
		return
	}
	sess.QosState.AddQueuedBytes(int64(n))
}

// trackDequeued reverses trackEnqueued once writePump has flushed a frame
// to the socket (successfully or not — the byte is no longer queued either
// way).
func (c *Conn) trackDequeued(n int) {
	sess := c.Session()
	if sess == nil {
		return
	}
	sess.QosState.AddQueuedBytes(-int64(n))
}

// QueuedBytes reports the connection's current backpressure byte count.
func (c *Conn) QueuedBytes() int64 {
	sess := c.Session()
	if sess == nil {
		return 0
	}
	return sess.QosState.QueuedBytes()
}
