package manager

import (
	"context"
	"time"
)

// IdleFor returns how long the manager has been without in-flight or queued
// work. It is zero while any request holds a slot.
func (m *Manager) IdleFor() time.Duration {
	if len(m.queueCh) > 0 || len(m.genCh) > 0 {
		return 0
	}
	m.mu.RLock()
	last := m.lastUsed
	m.mu.RUnlock()
	return m.now().Sub(last)
}

// WatchIdle checks every interval whether the service has been idle for the
// configured idle timeout. When it has, the manager switches to draining,
// which rejects new requests, and onIdle is called once. WatchIdle returns
// after onIdle or when ctx ends.
func (m *Manager) WatchIdle(ctx context.Context, interval time.Duration, onIdle func()) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if m.State() != StateReady {
			continue
		}
		idle := m.IdleFor()
		if idle < m.idleTimeout {
			continue
		}
		m.mu.Lock()
		// re-check under lock; a request may have slipped in
		if m.state != StateReady || len(m.queueCh) > 0 || len(m.genCh) > 0 {
			m.mu.Unlock()
			continue
		}
		m.state = StateDraining
		m.mu.Unlock()
		m.logger.Info().Dur("idle", idle).Msg("idle timeout reached, draining")
		m.publisher.Publish(Event{Name: EventIdleReclaim, Service: m.svc.Name(), Fields: map[string]any{"idle_ms": idle.Milliseconds()}})
		if onIdle != nil {
			onIdle()
		}
		return
	}
}
