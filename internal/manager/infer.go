package manager

import (
	"context"
	"sync/atomic"
)

// Do runs fn while holding the generation slot, so at most one inference
// uses the model at a time. fn receives the caller's context.
func (m *Manager) Do(ctx context.Context, fn func(context.Context) error) error {
	name := m.svc.Name()
	timer := newInferenceTimer(name)
	release, err := m.beginGeneration(ctx)
	if err != nil {
		timer.observe(err)
		return err
	}
	defer release()
	atomic.AddUint64(&m.requestsTotal, 1)
	err = fn(ctx)
	timer.observe(err)
	if err != nil && !IsInvalidInput(err) {
		m.logger.Error().Err(err).Msg("inference failed")
	}
	return err
}

// Call is Do for functions returning a value.
func Call[T any](ctx context.Context, m *Manager, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := m.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
