package events

import "sync"

// RingBuffer keeps the newest events in emission order.
type RingBuffer struct {
	mu    sync.RWMutex
	buf   []Event
	start int
	n     int
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Add appends e, overwriting the oldest event when full.
func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.n < len(rb.buf) {
		rb.buf[(rb.start+rb.n)%len(rb.buf)] = e
		rb.n++
		return
	}
	rb.buf[rb.start] = e
	rb.start = (rb.start + 1) % len(rb.buf)
}

// Snapshot returns every buffered event, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Last(0)
}

// Last returns up to n of the newest events, oldest first. n <= 0 returns all.
func (rb *RingBuffer) Last(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.n {
		n = rb.n
	}
	out := make([]Event, n)
	skip := rb.n - n
	for i := range out {
		out[i] = rb.buf[(rb.start+skip+i)%len(rb.buf)]
	}
	return out
}

// Session returns the buffered events tagged with session id, oldest first.
func (rb *RingBuffer) Session(id string) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := []Event{}
	for i := 0; i < rb.n; i++ {
		if e := rb.buf[(rb.start+i)%len(rb.buf)]; e.SessionID() == id {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

// Clear drops all buffered events.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.buf)
	rb.start, rb.n = 0, 0
}
