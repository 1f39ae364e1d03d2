package manager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchIdle_ReclaimsAfterTimeout(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	pub := NewMemoryPublisher()
	svc := &fakeService{}
	m := New(svc, Config{IdleTimeout: 240 * time.Second, Publisher: pub})
	m.now = clk.Now
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fired := make(chan struct{})
	go m.WatchIdle(context.Background(), time.Millisecond, func() { close(fired) })

	clk.Advance(239 * time.Second)
	select {
	case <-fired:
		t.Fatalf("reclaimed before the idle timeout")
	case <-time.After(30 * time.Millisecond):
	}

	clk.Advance(time.Second)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expected reclaim after 240s idle")
	}
	if m.State() != StateDraining {
		t.Fatalf("expected draining, got %s", m.State())
	}
	if !IsNotReady(m.Do(context.Background(), func(context.Context) error { return nil })) {
		t.Fatalf("draining manager must reject requests")
	}
	found := false
	for _, n := range pub.Names() {
		if n == "idle_reclaim" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected idle_reclaim event, got %v", pub.Names())
	}
}

func TestWatchIdle_RequestResetsTimer(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := New(&fakeService{}, Config{IdleTimeout: 240 * time.Second})
	m.now = clk.Now
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Advance(200 * time.Second)
	if err := m.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	clk.Advance(200 * time.Second)
	if got := m.IdleFor(); got != 200*time.Second {
		t.Fatalf("expected idle 200s after request, got %v", got)
	}
}

func TestWatchIdle_NotWhileInflight(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := New(&fakeService{}, Config{IdleTimeout: time.Second})
	m.now = clk.Now
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rel, err := m.beginGeneration(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	clk.Advance(time.Hour)
	if m.IdleFor() != 0 {
		t.Fatalf("idle must be zero while a request is in flight")
	}
	var fired int32
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	m.WatchIdle(ctx, time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("reclaimed while a request was in flight")
	}
	rel()
}

// A reclaimed container is replaced by a fresh process: Initialize runs again
// on the new manager, and the build hook is not part of startup.
func TestColdStartAfterReclaim(t *testing.T) {
	svc := &fakeService{}
	first := New(svc, Config{IdleTimeout: time.Millisecond})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first.WatchIdle(ctx, time.Millisecond, func() { _ = first.Close() })
	if first.State() != StateDraining {
		t.Fatalf("expected first container drained, got %s", first.State())
	}

	second := New(svc, Config{})
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := atomic.LoadInt32(&svc.initializes); n != 2 {
		t.Fatalf("expected Initialize to re-run on cold start, got %d", n)
	}
	if n := atomic.LoadInt32(&svc.prepares); n != 0 {
		t.Fatalf("build hook must not run on cold start, got %d", n)
	}
	if !second.Ready() {
		t.Fatalf("expected new container ready")
	}
}
