package scheduler

import "sync"

// MemoryPublisher records scheduler events in publish order. Tests use it to
// assert lifecycle and per-request sequences.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher returns an empty recorder.
func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

// Publish implements EventPublisher.
func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Events returns a copy of everything recorded so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Names returns the event names in publish order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

// ForRequest returns the names of the events published for one request id,
// from request_queued through its terminal event.
func (p *MemoryPublisher) ForRequest(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.RequestID == id {
			out = append(out, e.Name)
		}
	}
	return out
}
