// Package events implements the process-wide fan-out layer: a registry mapping
// match ids to live subscribers, and the spectator presence tracker. All state
// is ephemeral; disconnected observers are never replayed missed events.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agonlabs/arena-system/models"
)

// Subscriber receives published events. Callbacks must not block: stream
// handlers push into bounded buffers and drop on overflow.
type Subscriber func(models.MatchEvent)

// Bus delivers published match events to every current subscriber of that
// match. Delivery is serialized per match id, so the order of events seen by a
// single subscriber always equals publish order.
type Bus struct {
	mu      sync.RWMutex
	matches map[string]*matchSubs
	logger  *slog.Logger
}

type matchSubs struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Subscriber
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		matches: make(map[string]*matchSubs),
		logger:  logger,
	}
}

// Subscribe registers the callback under the match id and returns an
// unsubscribe handle, safe to call more than once.
func (b *Bus) Subscribe(matchID string, fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	ms, ok := b.matches[matchID]
	if !ok {
		ms = &matchSubs{subs: make(map[int]Subscriber)}
		b.matches[matchID] = ms
	}
	b.mu.Unlock()

	ms.mu.Lock()
	ms.nextID++
	id := ms.nextID
	ms.subs[id] = fn
	ms.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ms.mu.Lock()
			delete(ms.subs, id)
			empty := len(ms.subs) == 0
			ms.mu.Unlock()
			if empty {
				b.mu.Lock()
				if cur, ok := b.matches[matchID]; ok && cur == ms {
					ms.mu.Lock()
					if len(ms.subs) == 0 {
						delete(b.matches, matchID)
					}
					ms.mu.Unlock()
				}
				b.mu.Unlock()
			}
		})
	}
}

// Publish delivers the event to every currently subscribed callback for the
// match. A match with zero subscribers is a no-op. A panicking subscriber is
// isolated so it cannot prevent delivery to the others.
func (b *Bus) Publish(matchID, eventType string, data any) {
	b.mu.RLock()
	ms, ok := b.matches[matchID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	event := models.MatchEvent{
		Type:      eventType,
		MatchID:   matchID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, fn := range ms.subs {
		b.deliver(fn, event)
	}
}

func (b *Bus) deliver(fn Subscriber, event models.MatchEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked during delivery",
				slog.String("match_id", event.MatchID),
				slog.String("type", event.Type),
				slog.Any("panic", r))
		}
	}()
	fn(event)
}

// SubscriberCount reports how many callbacks are registered for a match.
func (b *Bus) SubscriberCount(matchID string) int {
	b.mu.RLock()
	ms, ok := b.matches[matchID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.subs)
}
