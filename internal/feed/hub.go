package feed

import (
	"log/slog"
	"sync"
	"time"
)

// BookEvent is the snapshot pushed to new-book subscribers. It is copied
// by value out of the catalog so the feed never aliases store state.
type BookEvent struct {
	BookID string `json:"book_id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Subscriber is one time-bounded listener. C is closed by Unsubscribe or
// when the hub prunes an expired entry during a publish pass.
type Subscriber struct {
	C        chan BookEvent
	deadline time.Time
}

// Deadline reports when the subscription stops receiving events.
func (s *Subscriber) Deadline() time.Time { return s.deadline }

// Hub fans new-book events out to every live subscriber. Best-effort
// delivery: a full queue drops the event for that subscriber, an expired
// subscriber is removed and its channel closed.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	buffer int
	logger *slog.Logger
	now    func() time.Time
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

func (h *Hub) Subscribe(d time.Duration) *Subscriber {
	sub := &Subscriber{
		C:        make(chan BookEvent, h.buffer),
		deadline: h.now().Add(d),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	Subscribers.Set(float64(len(h.subs)))
	h.mu.Unlock()

	h.logger.Info("feed subscriber added", "duration", d)
	return sub
}

// Count reports the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// more than once and safe to race with Publish.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.C)
	Subscribers.Set(float64(len(h.subs)))
}

// Publish delivers the event to every live subscriber. Expired entries are
// pruned in the same pass so they stop costing work.
func (h *Hub) Publish(ev BookEvent) {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if !now.Before(sub.deadline) {
			delete(h.subs, sub)
			close(sub.C)
			continue
		}
		select {
		case sub.C <- ev:
		default:
			// Slow consumer; drop this event for this subscriber.
		}
	}
	Subscribers.Set(float64(len(h.subs)))
}
