package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// REDIS RELAY - Cross-instance event delivery
// =============================================================================

const (
	outboxSize            = 256
	defaultPublishTimeout = 2 * time.Second
)

// publisher is the part of *redis.Client the relay writes through.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisRelay mirrors bus events over a Redis pub/sub channel so every
// server instance invalidates its own cache when any instance sees a change.
//
// Locally published events are queued and sent to Redis by a background
// sender, so a slow Redis never blocks the write that published the event.
// A full queue drops the event with a warning. Events received from Redis
// are republished locally with their original Origin and are not forwarded
// again.
type RedisRelay struct {
	client         *redis.Client
	pub            publisher
	channel        string
	bus            *Bus
	logger         *slog.Logger
	publishTimeout time.Duration

	mu          sync.Mutex
	pubsub      *redis.PubSub
	unsubscribe func()
	done        chan struct{}

	outMu      sync.Mutex
	outbox     chan outgoing
	senderDone chan struct{}
}

type outgoing struct {
	id      string
	topic   Topic
	payload []byte
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, address, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisRelay(client *redis.Client, channel string, bus *Bus, logger *slog.Logger) *RedisRelay {
	r := newRelay(client, channel, bus, logger)
	r.client = client
	return r
}

func newRelay(pub publisher, channel string, bus *Bus, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		pub:            pub,
		channel:        channel,
		bus:            bus,
		logger:         logger.With("component", "redis_relay", "channel", channel),
		publishTimeout: defaultPublishTimeout,
	}
}

// Start subscribes to the channel and begins forwarding local events.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return nil
	}

	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.pubsub = pubsub
	r.done = make(chan struct{})
	r.startSender()
	r.unsubscribe = r.bus.Subscribe(TopicAll, r.forward)

	go r.listen(pubsub.Channel(), r.done)

	r.logger.Info("redis relay started")
	return nil
}

// Stop unsubscribes from the bus and Redis.
func (r *RedisRelay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil {
		return nil
	}

	r.unsubscribe()
	r.stopSender()
	err := r.pubsub.Close()
	<-r.done
	r.pubsub = nil

	r.logger.Info("redis relay stopped")
	return err
}

func (r *RedisRelay) listen(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		r.receive(context.Background(), msg.Payload)
	}
}

// forward queues locally originated events for the sender.
func (r *RedisRelay) forward(ctx context.Context, e Event) {
	if e.Origin != r.bus.Origin() {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		r.logger.Error("failed to encode event", "id", e.ID, "error", err)
		return
	}

	r.outMu.Lock()
	defer r.outMu.Unlock()
	if r.outbox == nil {
		return
	}
	select {
	case r.outbox <- outgoing{id: e.ID, topic: e.Topic, payload: payload}:
	default:
		r.logger.Warn("relay queue full, dropping event", "id", e.ID, "topic", e.Topic)
	}
}

func (r *RedisRelay) startSender() {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if r.outbox != nil {
		return
	}
	r.outbox = make(chan outgoing, outboxSize)
	r.senderDone = make(chan struct{})
	go r.send(r.outbox, r.senderDone)
}

// stopSender closes the queue and waits for queued events to be sent.
func (r *RedisRelay) stopSender() {
	r.outMu.Lock()
	if r.outbox == nil {
		r.outMu.Unlock()
		return
	}
	close(r.outbox)
	r.outbox = nil
	done := r.senderDone
	r.outMu.Unlock()

	<-done
}

func (r *RedisRelay) send(outbox <-chan outgoing, done chan struct{}) {
	defer close(done)
	for msg := range outbox {
		ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
		err := r.pub.Publish(ctx, r.channel, msg.payload).Err()
		cancel()
		if err != nil {
			r.logger.Warn("failed to relay event", "id", msg.id, "topic", msg.topic, "error", err)
		}
	}
}

// receive republishes an event from another instance on the local bus.
func (r *RedisRelay) receive(ctx context.Context, payload string) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		r.logger.Warn("dropping malformed event", "error", err)
		return
	}
	if e.Origin == "" || e.Origin == r.bus.Origin() {
		return
	}
	r.bus.Publish(ctx, e)
}
