package manager

// Lifecycle event names, in the order a healthy container emits them.
const (
	EventInitializeStart = "initialize_start"
	EventInitializeError = "initialize_error"
	EventReady           = "ready"
	EventIdleReclaim     = "idle_reclaim"
	EventClosed          = "closed"
)

// Event is one lifecycle transition of the service. Fields carry
// event-specific values such as dur_ms, idle_ms or error.
type Event struct {
	Name    string
	Service string
	Fields  map[string]any
}

// EventPublisher receives lifecycle events. Publish is called on the
// goroutine driving the transition and must not block.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
