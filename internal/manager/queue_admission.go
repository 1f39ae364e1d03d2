package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state != StateReady {
		return func() {}, notReadyError{service: m.svc.Name(), state: state}
	}

	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		IncrementBackpressure("queue_full")
		return func() {}, tooBusyError{service: m.svc.Name()}
	}

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	// WatchIdle drains only with an empty queue; a drain that won the race
	// before our slot was taken must turn this request away.
	m.mu.RLock()
	state = m.state
	m.mu.RUnlock()
	if state != StateReady {
		return func() {}, notReadyError{service: m.svc.Name(), state: state}
	}
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		m.touch()
		return func() {
			m.touch()
			<-m.genCh
			<-m.queueCh
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		IncrementBackpressure("gen_wait")
		return func() {}, tooBusyError{service: m.svc.Name()}
	}
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastUsed = m.now()
	m.mu.Unlock()
}
