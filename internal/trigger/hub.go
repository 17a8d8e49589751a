package trigger

import (
	"strings"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 16

type subscriber struct {
	tab string
	ch  chan struct{}
}

// Hub fans out page mutation notifications to waiters subscribed to a tab.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]subscriber
	nextID      atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]subscriber)}
}

// Subscribe returns a channel of notifications for tab and a cancel func
// that closes it. Slow consumers have notifications dropped.
func (h *Hub) Subscribe(tab string) (<-chan struct{}, func()) {
	id := h.nextID.Add(1)
	ch := make(chan struct{}, subscriberBufSize)
	h.mu.Lock()
	h.subscribers[id] = subscriber{tab: strings.ToLower(strings.TrimSpace(tab)), ch: ch}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Publish notifies subscribers of tab without blocking.
func (h *Hub) Publish(tab string) {
	tab = strings.ToLower(strings.TrimSpace(tab))
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subscribers {
		if s.tab != tab {
			continue
		}
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
