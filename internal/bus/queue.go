package bus

// Queue carries inbound events from the connection manager to the engine's
// single dispatch loop. Buffered so a burst of channel events never blocks
// the transport read loop.
type Queue struct {
	events chan Event
}

// NewQueue creates a queue with a buffered event channel.
func NewQueue() *Queue {
	return &Queue{events: make(chan Event, 100)}
}

// Publish enqueues an event for dispatch.
func (q *Queue) Publish(ev Event) {
	q.events <- ev
}

// Events returns the receive side for the dispatch loop.
func (q *Queue) Events() <-chan Event {
	return q.events
}

// Size returns the number of pending events.
func (q *Queue) Size() int {
	return len(q.events)
}
