package stream

import "sync"

// History is a thread-safe ring buffer of recent broadcast envelopes,
// replayed to freshly-connected subscribers.
type History struct {
	entries []Envelope
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewHistory creates a history buffer with the given capacity.
func NewHistory(size int) *History {
	return &History{
		entries: make([]Envelope, size),
		size:    size,
	}
}

// Add records one envelope, evicting the oldest when full.
func (h *History) Add(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = env
	h.head = (h.head + 1) % h.size
	if h.count < h.size {
		h.count++
	}
}

// All returns the buffered envelopes in chronological order.
func (h *History) All() []Envelope {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Envelope, h.count)
	if h.count == 0 {
		return result
	}

	start := 0
	if h.count == h.size {
		start = h.head
	}
	for i := 0; i < h.count; i++ {
		result[i] = h.entries[(start+i)%h.size]
	}
	return result
}

// Recent returns the newest n envelopes in chronological order.
func (h *History) Recent(n int) []Envelope {
	all := h.All()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}
