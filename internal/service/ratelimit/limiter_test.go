package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(rate float64, burst int) (*ReporterLimiter, *time.Time) {
	l := NewReporterLimiter(rate, burst)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowBurstThenBlock(t *testing.T) {
	l, _ := newTestLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("r1") {
			t.Fatalf("request %d inside burst rejected", i)
		}
	}
	if l.Allow("r1") {
		t.Fatalf("request over burst allowed")
	}
}

func TestRefillOverTime(t *testing.T) {
	l, now := newTestLimiter(2, 2)

	l.Allow("r1")
	l.Allow("r1")
	if l.Allow("r1") {
		t.Fatalf("exhausted bucket allowed")
	}

	*now = now.Add(time.Second) // refills 2 tokens
	if !l.Allow("r1") {
		t.Fatalf("refilled bucket rejected")
	}
	if !l.Allow("r1") {
		t.Fatalf("second refilled token rejected")
	}
	if l.Allow("r1") {
		t.Fatalf("bucket over-refilled beyond burst")
	}
}

func TestReportersIsolated(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	if !l.Allow("r1") {
		t.Fatalf("r1 first request rejected")
	}
	if !l.Allow("r2") {
		t.Fatalf("r2 throttled by r1's bucket")
	}
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(1, 1)

	l.Allow("idle")
	*now = now.Add(10 * time.Minute)
	l.Allow("active")
	l.Prune(5 * time.Minute)

	l.mu.Lock()
	_, idleKept := l.buckets["idle"]
	_, activeKept := l.buckets["active"]
	l.mu.Unlock()
	if idleKept {
		t.Fatalf("idle bucket survived prune")
	}
	if !activeKept {
		t.Fatalf("active bucket pruned")
	}
}
