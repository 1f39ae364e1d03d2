package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns one Service for the lifetime of the process.
type Manager struct {
	mu    sync.RWMutex
	svc   Service
	state State
	err   string

	startOnce sync.Once
	startErr  error
	closeOnce sync.Once

	// Queueing primitives
	genCh         chan struct{} // size 1: single in-flight generation
	queueCh       chan struct{} // buffered: queue slots
	maxQueueDepth int
	maxWait       time.Duration

	idleTimeout   time.Duration
	lastUsed      time.Time
	coldStart     time.Duration
	requestsTotal uint64
	startTime     time.Time

	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// Start runs the service's Initialize exactly once. Later calls return the
// result of the first. The manager becomes ready only if Initialize succeeds.
func (m *Manager) Start(ctx context.Context) error {
	m.startOnce.Do(func() {
		name := m.svc.Name()
		t0 := m.now()
		m.logger.Info().Msg("initialize start")
		m.publisher.Publish(Event{Name: EventInitializeStart, Service: name, Fields: map[string]any{}})

		err := m.svc.Initialize(ctx)
		dur := m.now().Sub(t0)

		m.mu.Lock()
		m.coldStart = dur
		if err != nil {
			m.state = StateError
			m.err = err.Error()
		} else {
			m.state = StateReady
			m.err = ""
			m.lastUsed = m.now()
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Error().Err(err).Dur("dur", dur).Msg("initialize failed")
			m.publisher.Publish(Event{Name: EventInitializeError, Service: name, Fields: map[string]any{"error": err.Error()}})
			m.startErr = err
			return
		}
		coldStartSeconds.WithLabelValues(name).Set(dur.Seconds())
		m.logger.Info().Dur("dur", dur).Msg("initialize done")
		m.publisher.Publish(Event{Name: EventReady, Service: name, Fields: map[string]any{"dur_ms": dur.Milliseconds()}})
	})
	return m.startErr
}

// Ready reports whether Initialize succeeded and the manager is not draining.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ServiceName returns the managed service's name.
func (m *Manager) ServiceName() string { return m.svc.Name() }

// Close stops admitting requests and releases the service. It does not wait
// for in-flight work; callers drain the HTTP server first.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.state = StateDraining
		m.mu.Unlock()
		err = m.svc.Close()
		m.publisher.Publish(Event{Name: EventClosed, Service: m.svc.Name(), Fields: map[string]any{}})
	})
	return err
}
