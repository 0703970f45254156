/*
Package events carries change notifications between the parts of the
capacity pipeline.

PURPOSE:
  When a task, availability record, skill or client changes, cached
  matrices and summaries that depend on it are stale. Writers publish an
  Event; the forecast invalidator subscribes and drops the affected keys.

HOW IT WORKS:
  - Handlers run synchronously on the publisher's goroutine, in
    subscription order, so the cache is already invalidated when Publish
    returns
  - A panicking handler is logged and does not stop delivery
  - Each Bus has an origin ID; events published locally carry it, which
    lets the Redis relay avoid echoing events back to their sender

SEE ALSO:
  - redis.go: Cross-instance relay
  - forecast/invalidator.go: Subscribes and invalidates cache keys
*/
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Topic string

const (
	TopicTaskChanged         Topic = "task.changed"
	TopicAvailabilityChanged Topic = "staff.availability.changed"
	TopicSkillsChanged       Topic = "skills.changed"
	TopicClientChanged       Topic = "client.changed"
	TopicForecastChanged     Topic = "forecast.changed"

	// TopicAll subscribes to every topic.
	TopicAll Topic = "*"
)

// Event is a change notification. Empty ClientID/StaffID mean "any".
type Event struct {
	ID       string    `json:"id"`
	Topic    Topic     `json:"topic"`
	ClientID string    `json:"client_id,omitempty"`
	StaffID  string    `json:"staff_id,omitempty"`
	Month    string    `json:"month,omitempty"`
	At       time.Time `json:"at"`
	Origin   string    `json:"origin"`
}

type Handler func(ctx context.Context, e Event)

type subscription struct {
	id      int
	topic   Topic
	handler Handler
}

// Bus is an in-process publish/subscribe channel.
type Bus struct {
	origin string
	logger *slog.Logger

	mu     sync.RWMutex
	subs   []subscription
	nextID int
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		origin: uuid.NewString(),
		logger: logger.With("component", "events"),
	}
}

// Origin identifies this bus instance.
func (b *Bus) Origin() string { return b.origin }

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every matching handler. ID, At and Origin are
// filled in when empty. Returns the event as delivered.
func (b *Bus) Publish(ctx context.Context, e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.Origin == "" {
		e.Origin = b.origin
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == e.Topic || s.topic == TopicAll {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, e)
	}

	b.logger.Debug("event published", "topic", e.Topic, "id", e.ID, "handlers", len(subs))
	return e
}

func (b *Bus) deliver(ctx context.Context, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", e.Topic, "id", e.ID, "panic", r)
		}
	}()
	s.handler(ctx, e)
}
