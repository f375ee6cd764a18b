package orders

import (
	"sync"
	"time"
)

// StatusHub fans saga transitions out to SSE subscribers keyed by payment id.
// Clients subscribe after starting a payment and get every subsequent
// transition; slow clients lose events instead of blocking the saga.
type StatusHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan StatusEvent]struct{}
}

func NewStatusHub() *StatusHub {
	return &StatusHub{
		subscribers: make(map[string]map[chan StatusEvent]struct{}),
	}
}

// Subscribe registers a listener for one payment id. The returned cancel
// function must be called when the client disconnects.
func (h *StatusHub) Subscribe(paymentID string) (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, 8)

	h.mu.Lock()
	if h.subscribers[paymentID] == nil {
		h.subscribers[paymentID] = make(map[chan StatusEvent]struct{})
	}
	h.subscribers[paymentID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[paymentID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, paymentID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the payment id. Sends are
// non-blocking; a full buffer drops the event for that subscriber.
func (h *StatusHub) Publish(orderID, paymentID string, status Status, reason string) {
	event := StatusEvent{
		OrderID:   orderID,
		PaymentID: paymentID,
		Status:    status,
		Reason:    reason,
		At:        time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[paymentID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount reports live listeners, used by the status endpoint.
func (h *StatusHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}
