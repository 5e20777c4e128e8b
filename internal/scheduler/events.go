package scheduler

// Event represents a scheduler lifecycle or request event.
// Minimal and stable: name + request ID and optional fields.
type Event struct {
	Name      string
	RequestID string
	Fields    map[string]any
}

// Event names.
const (
	EventRequestQueued    = "request_queued"
	EventRequestStart     = "request_start"
	EventRequestDone      = "request_done"
	EventRequestFailed    = "request_failed"
	EventSinkClosed       = "sink_closed"
	EventSchedulerReady   = "scheduler_ready"
	EventSchedulerStopped = "scheduler_stopped"
)

// EventPublisher receives events from the scheduler. Implementations should be
// lightweight and non-blocking; Publish must not panic. Publish is called
// from producer goroutines (request_queued) and from the scheduler goroutine.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
