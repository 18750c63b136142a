package wstransport

import (
	"context"
	"time"

	"github.com/efecan0/binaryrpc/internal/qos"
)

// retryTickInterval is the retry scheduler's tick period.
const retryTickInterval = 100 * time.Millisecond

// RunRetryScheduler drives QoS-1 and QoS-2 outbound retries for every
// currently active connection until ctx is cancelled. Intended to run under
// an errgroup.Group alongside the session manager's reaper; an error on one
// tick is logged and the loop continues rather than aborting the scheduler.
func (s *Server) RunRetryScheduler(ctx context.Context) error {
	ticker := time.NewTicker(retryTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tickRetries()
		}
	}
}

func (s *Server) tickRetries() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("retry tick panicked, continuing", "panic", r)
		}
	}()

	s.conns.Range(func(_, v any) bool {
		conn := v.(*Conn)
		if !conn.IsAlive() {
			return true
		}
		conn.processRetries(s.opts.BackoffOrDefault(), s.opts.MaxRetry)
		return true
	})
}

// processRetries drives one QoS-1 and one QoS-2 retry tick. now is captured
// once per call so the two passes agree on "now".
func (c *Conn) processRetries(backoff qos.BackoffStrategy, maxRetry uint32) {
	now := time.Now()
	c.retryQoS1(now, backoff, maxRetry)
	c.retryQoS2(now, backoff, maxRetry)
}

func (c *Conn) retryQoS1(now time.Time, backoff qos.BackoffStrategy, maxRetry uint32) {
	cs := c.qosState()

	var toSend [][]byte
	var toDrop []uint64

	cs.PendMx.Lock()
	for id, info := range cs.Pending1 {
		if info.NextRetryAt.After(now) {
			continue
		}
		if maxRetry > 0 && info.RetryCount >= maxRetry {
			toDrop = append(toDrop, id)
			continue
		}
		info.RetryCount++
		info.NextRetryAt = now.Add(backoff.NextDelay(info.RetryCount))
		toSend = append(toSend, info.Frame)
	}
	for _, id := range toDrop {
		delete(cs.Pending1, id)
	}
	cs.PendMx.Unlock()

	for _, id := range toDrop {
		c.log.Warn("qos-1 message exhausted retries, dropped", "connId", c.id, "id", id)
	}
	for _, frame := range toSend {
		c.safeSend(frame)
		if c.met != nil {
			c.met.QoS1Retry()
		}
	}
}

func (c *Conn) retryQoS2(now time.Time, backoff qos.BackoffStrategy, maxRetry uint32) {
	cs := c.qosState()

	var toSend [][]byte
	var toDrop []uint64

	cs.Q2Mx.Lock()
	for id, meta := range cs.Qos2Pending {
		if meta.NextRetryAt.After(now) {
			continue
		}
		if maxRetry > 0 && meta.RetryCount >= maxRetry {
			toDrop = append(toDrop, id)
			continue
		}
		meta.RetryCount++
		meta.NextRetryAt = now.Add(backoff.NextDelay(meta.RetryCount))
		meta.LastTouched = now
		toSend = append(toSend, meta.Frame)
	}
	for _, id := range toDrop {
		delete(cs.Qos2Pending, id)
		delete(cs.PubPrepare, id)
		delete(cs.PendingResp, id)
	}
	cs.Q2Mx.Unlock()

	for _, id := range toDrop {
		c.log.Warn("qos-2 message exhausted retries, dropped end-to-end", "connId", c.id, "id", id)
	}
	for _, frame := range toSend {
		c.safeSend(frame)
		if c.met != nil {
			c.met.QoS2Retry()
		}
	}
}
