// Package feed is a small in-process broadcast hub carrying engine events to
// the control surface (websocket monitors). Publishing never blocks the
// engine: slow subscribers drop events.

package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EventType tags one published event.
type EventType string

const (
	EventOrderAccepted EventType = "order-accepted"
	EventOrderRejected EventType = "order-rejected"
	EventOrderExpired  EventType = "order-expired"
	EventOrderClosed   EventType = "order-closed"
	EventTrade         EventType = "trade"
	EventTCR           EventType = "tcr"
)

// Event is one engine occurrence, shaped for JSON delivery.
type Event struct {
	Type       EventType       `json:"type"`
	SecurityID string          `json:"security_id,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
	TradeID    string          `json:"trade_id,omitempty"`
	Price      decimal.Decimal `json:"price,omitempty"`
	Quantity   decimal.Decimal `json:"quantity,omitempty"`
	Status     string          `json:"status,omitempty"`
	Time       time.Time       `json:"time"`
}

const subscriberBuffer = 64

// Hub is the broadcast fan-out point.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener; cancel must be called when done.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
