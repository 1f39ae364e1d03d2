package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeService is a lightweight in-memory Service used for tests.
type fakeService struct {
	name        string
	initErr     error
	initDelay   time.Duration
	prepares    int32
	initializes int32
	closes      int32
}

func (f *fakeService) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeService) PrepareArtifacts(ctx context.Context) error {
	atomic.AddInt32(&f.prepares, 1)
	return nil
}

func (f *fakeService) Initialize(ctx context.Context) error {
	atomic.AddInt32(&f.initializes, 1)
	if f.initDelay > 0 {
		select {
		case <-time.After(f.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.initErr
}

func (f *fakeService) Close() error {
	atomic.AddInt32(&f.closes, 1)
	return nil
}

// newReady returns a started manager around a fresh fakeService.
func newReady(t *testing.T, cfg Config) (*Manager, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	m := New(svc, cfg)
	if err := m.Start(testCtx(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m, svc
}

// fakeClock is a manually advanced clock for idle tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
