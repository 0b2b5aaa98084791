package pipeline

import "sync"

// Hub fans out Progress events to any number of subscribers, modelled
// directly on internal/statemachine.Hub's register/broadcast/drop-on-full
// discipline.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Progress]struct{}
	closed      bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Progress]struct{})}
}

// Subscribe returns a channel receiving every subsequent Broadcast.
func (h *Hub) Subscribe() <-chan Progress {
	ch := make(chan Progress, 32)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

// Broadcast delivers p to every live subscriber, dropping one whose
// buffer is full rather than blocking the driving task.
func (h *Hub) Broadcast(p Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subscribers {
		select {
		case ch <- p:
		default:
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}
