package qos

import (
	"testing"
	"time"
)

func TestLinearBackoff(t *testing.T) {
	b := NewLinearBackoff(50*time.Millisecond, 500*time.Millisecond)

	if got := b.NextDelay(1); got != 50*time.Millisecond {
		t.Errorf("attempt 1: got %v, want 50ms", got)
	}
	if got := b.NextDelay(3); got != 150*time.Millisecond {
		t.Errorf("attempt 3: got %v, want 150ms", got)
	}
	if got := b.NextDelay(100); got != 500*time.Millisecond {
		t.Errorf("attempt 100: got %v, want capped at 500ms", got)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := NewExponentialBackoff(10*time.Millisecond, 1*time.Second)

	if got := b.NextDelay(1); got != 10*time.Millisecond {
		t.Errorf("attempt 1: got %v, want 10ms", got)
	}
	if got := b.NextDelay(2); got != 20*time.Millisecond {
		t.Errorf("attempt 2: got %v, want 20ms", got)
	}
	if got := b.NextDelay(3); got != 40*time.Millisecond {
		t.Errorf("attempt 3: got %v, want 40ms", got)
	}
	if got := b.NextDelay(20); got != 1*time.Second {
		t.Errorf("attempt 20: got %v, want capped at 1s", got)
	}
}

func TestExponentialBackoffSaturatesOnHugeAttempt(t *testing.T) {
	b := NewExponentialBackoff(time.Millisecond, time.Hour)
	got := b.NextDelay(1000)
	if got != time.Hour {
		t.Errorf("expected saturation to max, got %v", got)
	}
}
