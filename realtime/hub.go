package realtime

import (
	"sync"

	"go.uber.org/zap"

	"marketplace/middleware"
	"marketplace/models"
)

const (
	EventNewOrder = "new_order"
	EventChange   = "change"
)

// Event tells a vendor view to re-fetch its sub-orders. It carries no
// authoritative state.
type Event struct {
	Type          string            `json:"type"`
	ChangeType    models.ChangeType `json:"changeType"`
	VendorOrderID string            `json:"vendorOrderId,omitempty"`
}

// Subscription must be closed when the subscriber goes away.
type Subscription struct {
	C        <-chan Event
	vendorID string
	id       uint64
	hub      *Hub
	once     sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.vendorID, s.id)
	})
}

// Hub fans vendor order changes out to the subscribers of that vendor.
// Delivery never blocks: a subscriber whose buffer is full already has a
// pending re-fetch, so further events are coalesced into it. A new_order
// event displaces a queued change event so the alert is not lost.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]chan Event
	next   uint64
	total  int
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]map[uint64]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(vendorID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	ch := make(chan Event, h.buffer)
	if h.subs[vendorID] == nil {
		h.subs[vendorID] = make(map[uint64]chan Event)
	}
	h.subs[vendorID][h.next] = ch
	h.total++
	middleware.SetRealtimeSubscribers(h.total)

	return &Subscription{C: ch, vendorID: vendorID, id: h.next, hub: h}
}

func (h *Hub) unsubscribe(vendorID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[vendorID][id]
	if !ok {
		return
	}
	delete(h.subs[vendorID], id)
	if len(h.subs[vendorID]) == 0 {
		delete(h.subs, vendorID)
	}
	close(ch)
	h.total--
	middleware.SetRealtimeSubscribers(h.total)
}

// Publish returns how many subscribers received the event.
func (h *Hub) Publish(change models.VendorOrderChange) int {
	event := Event{Type: EventChange, ChangeType: change.EventType, VendorOrderID: change.VendorOrderID()}
	if change.EventType == models.ChangeInsert {
		event.Type = EventNewOrder
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, ch := range h.subs[change.VendorID] {
		select {
		case ch <- event:
			delivered++
		default:
			if event.Type == EventNewOrder && displaceChange(ch, event) {
				delivered++
				continue
			}
			h.logger.Debug("Subscriber behind, event coalesced",
				zap.String("vendor_id", change.VendorID),
				zap.String("vendor_order_id", event.VendorOrderID),
			)
		}
	}
	return delivered
}

// displaceChange drops the oldest queued change event from a full buffer and
// appends event, keeping the order of the rest. It reports false, leaving the
// buffer as it was, when every queued event is already a new_order.
// Callers hold h.mu, which makes them the only sender on ch.
func displaceChange(ch chan Event, event Event) bool {
	queued := make([]Event, 0, cap(ch))
drain:
	for {
		select {
		case e := <-ch:
			queued = append(queued, e)
		default:
			break drain
		}
	}

	drop := -1
	for i, e := range queued {
		if e.Type == EventChange {
			drop = i
			break
		}
	}
	if drop >= 0 {
		queued = append(queued[:drop], queued[drop+1:]...)
	}
	// The subscriber may have drained the buffer meanwhile.
	displaced := drop >= 0 || len(queued) < cap(ch)
	if displaced {
		queued = append(queued, event)
	}
	for _, e := range queued {
		ch <- e
	}
	return displaced
}

func (h *Hub) Subscribers(vendorID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[vendorID])
}
