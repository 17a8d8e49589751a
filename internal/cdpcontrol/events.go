package cdpcontrol

import "sync"

// eventBus fans CDP events out to subscribers. It lives on the Client so
// subscriptions outlast a reconnect.
type eventBus struct {
	mu       sync.RWMutex
	next     int64
	handlers map[string]map[int64]func(sessionID string, params []byte)
}

func (b *eventBus) on(method string, fn func(sessionID string, params []byte)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string]map[int64]func(string, []byte))
	}
	if b.handlers[method] == nil {
		b.handlers[method] = make(map[int64]func(string, []byte))
	}
	b.next++
	id := b.next
	b.handlers[method][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[method], id)
			b.mu.Unlock()
		})
	}
}

func (b *eventBus) dispatch(method, sessionID string, params []byte) {
	b.mu.RLock()
	fns := make([]func(string, []byte), 0, len(b.handlers[method]))
	for _, fn := range b.handlers[method] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(sessionID, params)
	}
}
