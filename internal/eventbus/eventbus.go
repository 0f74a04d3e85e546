// Package eventbus implements the Event Bus from spec §4.8: per-tenant
// fan-out of Supervisor/Bot Worker events to SSE subscribers, with
// per-subscriber FIFO delivery and durable `giveaway_entry` events.
//
// Grounded directly on the teacher's internal/handlers/stream_manager.go
// (Job/StreamManager): one bounded-channel subscriber set plus a replay
// history buffer per tracked entity, adapted from a single background job
// per chat session to one Topic per tenant, and from a single "replay
// everything" history to a two-tier history: giveaway_entry events go to a
// separate backlog of up to durableCap (500) events, kept until
// AckGiveawayEntries clears it. Once that backlog is full, each new entry
// drops the oldest one. A subscriber whose channel is full misses the live
// delivery of any event, giveaway_entry included; it sees the event again
// only in the replay of a later Subscribe.
package eventbus

import (
	"sync"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

const (
	subscriberBuffer = 100
	historyCap       = 200
	durableCap       = 500
)

// Bus fans out Events to per-tenant Topics.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*Topic
}

func New() *Bus {
	return &Bus{topics: make(map[string]*Topic)}
}

// Topic returns (creating if necessary) the per-tenant fan-out point.
func (b *Bus) Topic(tenantID string) *Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[tenantID]
	if !ok {
		t = newTopic()
		b.topics[tenantID] = t
	}
	return t
}

// Publish appends evt to tenantID's history and pushes it to every current
// subscriber, matching teacher Job.Broadcast's "append then best-effort
// fan-out" order.
func (b *Bus) Publish(tenantID string, evt models.Event) {
	b.Topic(tenantID).publish(evt)
}

// Topic is one tenant's event stream: a replay history plus live
// subscriber channels.
type Topic struct {
	mu          sync.Mutex
	history     []models.Event
	durable     []models.Event // giveaway_entry events, at most durableCap, retained until acked
	subscribers map[chan models.Event]struct{}
}

func newTopic() *Topic {
	return &Topic{subscribers: make(map[chan models.Event]struct{})}
}

// Subscribe registers a new channel and returns it along with a replay
// snapshot: durable events first (oldest first), then the recent best-effort
// history, so a late subscriber can't miss a giveaway entry.
func (t *Topic) Subscribe() (chan models.Event, []models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan models.Event, subscriberBuffer)
	t.subscribers[ch] = struct{}{}

	replay := make([]models.Event, 0, len(t.durable)+len(t.history))
	replay = append(replay, t.durable...)
	replay = append(replay, t.history...)
	return ch, replay
}

// Unsubscribe removes and closes ch. Safe to call more than once.
func (t *Topic) Unsubscribe(ch chan models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subscribers[ch]; ok {
		delete(t.subscribers, ch)
		close(ch)
	}
}

func (t *Topic) publish(evt models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if evt.Kind == models.EventGiveawayEntry {
		t.durable = append(t.durable, evt)
		if len(t.durable) > durableCap {
			t.durable = t.durable[len(t.durable)-durableCap:]
		}
	} else {
		t.history = append(t.history, evt)
		if len(t.history) > historyCap {
			t.history = t.history[len(t.history)-historyCap:]
		}
	}

	for ch := range t.subscribers {
		select {
		case ch <- evt:
		default:
			// Slow subscriber: drop live delivery, but the event already
			// landed in history/durable above so a resubscribe replays it.
		}
	}
}

// AckGiveawayEntries clears tenantID's durable backlog once a consumer has
// confirmed persistence (e.g. after the Persistence Port write succeeds),
// matching spec §4.8's "durable until acked".
func (t *Topic) AckGiveawayEntries() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.durable = nil
}
