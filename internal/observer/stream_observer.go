package observer

import (
	"context"
	"sync"
)

// DefaultStreamBuffer is the per-subscriber channel capacity.
const DefaultStreamBuffer = 64

// StreamObserver fans events out to channel subscribers, for server-sent
// events. A subscriber whose buffer is full misses events rather than
// blocking the run.
type StreamObserver struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

// NewStreamObserver creates a stream observer with the given per-subscriber
// buffer size.
func NewStreamObserver(buffer int) *StreamObserver {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &StreamObserver{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel function closes the
// channel and must be called once the subscriber is done.
func (o *StreamObserver) Subscribe() (<-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	ch := make(chan Event, o.buffer)
	o.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (o *StreamObserver) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// OnEvent delivers the event to every subscriber with room for it.
func (o *StreamObserver) OnEvent(ctx context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// GetObserverName returns the observer name
func (o *StreamObserver) GetObserverName() string {
	return "stream_observer"
}
