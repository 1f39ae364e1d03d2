package manager

import "context"

// State represents lifecycle state of the manager.
type State string

const (
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
	StateDraining State = "draining"
)

// Service is a model service bound to one container.
//
// PrepareArtifacts runs at image build time, once per recipe; it must be
// idempotent. Initialize runs once per process start and must complete
// before any request is admitted. Close releases the loaded model.
type Service interface {
	Name() string
	PrepareArtifacts(ctx context.Context) error
	Initialize(ctx context.Context) error
	Close() error
}
