package event

import "sync"

// defaultBuffer is the Feed's channel capacity when none is given.
const defaultBuffer = 256

// Feed is the bounded outbound channel of lifecycle events. Publish
// never blocks: when the buffer is full the event is dropped and
// counted. A Feed has at most one consumer (fan out downstream if more
// are needed).
type Feed struct {
	ch chan Event

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewFeed creates a Feed with the given buffer size (0 uses the default).
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Feed{ch: make(chan Event, buffer)}
}

// Publish offers an event to the consumer, dropping it when the buffer
// is full or the feed is closed.
func (f *Feed) Publish(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- e:
	default:
		f.dropped++
	}
}

// Events returns the receive side of the feed. The channel is closed by
// Close.
func (f *Feed) Events() <-chan Event {
	return f.ch
}

// Dropped returns how many events were discarded due to a full buffer.
func (f *Feed) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close closes the feed; subsequent publishes are dropped silently.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}
