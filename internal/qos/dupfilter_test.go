package qos

import (
	"testing"
	"time"
)

func TestDuplicateFilterRejectsWithinTTL(t *testing.T) {
	f := NewDuplicateFilter()
	payload := []byte("hello")
	ttl := 50 * time.Millisecond

	if !f.Accept(payload, ttl) {
		t.Fatal("first accept should succeed")
	}
	if f.Accept(payload, ttl) {
		t.Fatal("second accept within ttl should be rejected as duplicate")
	}
}

func TestDuplicateFilterAcceptsAfterTTL(t *testing.T) {
	f := NewDuplicateFilter()
	payload := []byte("hello")
	ttl := 20 * time.Millisecond

	if !f.Accept(payload, ttl) {
		t.Fatal("first accept should succeed")
	}
	time.Sleep(30 * time.Millisecond)
	if !f.Accept(payload, ttl) {
		t.Fatal("accept after ttl elapsed should succeed")
	}
}

func TestDuplicateFilterDistinctPayloads(t *testing.T) {
	f := NewDuplicateFilter()
	ttl := time.Second

	if !f.Accept([]byte("a"), ttl) {
		t.Fatal("a should be accepted")
	}
	if !f.Accept([]byte("b"), ttl) {
		t.Fatal("b should be accepted")
	}
}

func TestDuplicateFilterWindowCap(t *testing.T) {
	f := NewDuplicateFilter()
	ttl := time.Hour

	for i := 0; i < Window+100; i++ {
		f.Accept([]byte{byte(i), byte(i >> 8)}, ttl)
	}

	f.mu.Lock()
	n := f.order.Len()
	f.mu.Unlock()
	if n > Window {
		t.Errorf("filter grew beyond window cap: %d > %d", n, Window)
	}
}
