// Package events fans challenge lifecycle events out to subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/motify-engine/internal/models"
)

// DefaultBuffer is the per-subscriber channel capacity
const DefaultBuffer = 32

// Publisher publishes events
type Publisher interface {
	Publish(e models.Event)
}

// Hub is an in-process publish/subscribe hub. Publish never blocks: events
// for a subscriber whose buffer is full are dropped and counted.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int

	dropped func(subscriberID string)
}

// Subscription receives events for one challenge, or for all when ChallengeID is 0
type Subscription struct {
	ID          string
	ChallengeID int64
	C           <-chan models.Event

	ch   chan models.Event
	once sync.Once
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: DefaultBuffer,
	}
}

// OnDrop registers a callback invoked when an event is dropped for a slow subscriber
func (h *Hub) OnDrop(fn func(subscriberID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = fn
}

// Subscribe registers a subscriber. Call Unsubscribe when done.
func (h *Hub) Subscribe(challengeID int64) *Subscription {
	ch := make(chan models.Event, h.buffer)
	sub := &Subscription{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		C:           ch,
		ch:          ch,
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	slog.Debug("event subscriber added", "subscriber_id", sub.ID, "challenge_id", challengeID)
	return sub
}

// Unsubscribe removes the subscriber and closes its channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub.ID)
	h.mu.Unlock()

	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers e to every matching subscriber. Missing ID and At are filled in.
func (h *Hub) Publish(e models.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.ChallengeID != 0 && sub.ChallengeID != e.ChallengeID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			slog.Warn("event dropped for slow subscriber", "subscriber_id", sub.ID, "event_type", e.Type)
			if h.dropped != nil {
				h.dropped(sub.ID)
			}
		}
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
