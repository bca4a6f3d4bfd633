package relay

import (
	"context"
	"sync"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// Hub is the in-process Relay used when no Redis is configured. Delivery
// is best effort: a slow subscriber has its oldest pending event dropped
// rather than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan domain.RelayEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan domain.RelayEvent]struct{})}
}

func (h *Hub) Publish(_ context.Context, event domain.RelayEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context) (<-chan domain.RelayEvent, func(), error) {
	ch := make(chan domain.RelayEvent, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel, nil
}
