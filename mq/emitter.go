package mq

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScheduleChannel carries slot and order events between API instances.
const ScheduleChannel = "schedule-events"

// Event types.
const (
	SlotReserved = "slot.reserved"
	SlotReleased = "slot.released"
	SlotUpdated  = "slot.updated"
	OrderPrefix  = "order."
)

type Event struct {
	Type    string    `json:"type"`
	Date    string    `json:"date,omitempty"`
	SlotID  string    `json:"slotId,omitempty"`
	OrderID string    `json:"orderId,omitempty"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

// Emitter publishes events. Emit never fails the caller; delivery is best effort.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// RedisEmitter publishes events to ScheduleChannel.
type RedisEmitter struct {
	conn redis.UniversalClient
}

func NewRedisEmitter(conn redis.UniversalClient) *RedisEmitter {
	return &RedisEmitter{conn: conn}
}

func (r *RedisEmitter) Emit(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[Emit] Failed to marshal event: %v", err)
		return
	}
	if err := r.conn.Publish(ctx, ScheduleChannel, data).Err(); err != nil {
		log.Printf("[Emit] Failed to publish %s to Redis: %v", e.Type, err)
	}
}

// Listen relays events from ScheduleChannel to handle until ctx is done.
func Listen(ctx context.Context, conn redis.UniversalClient, handle func(Event)) {
	sub := conn.Subscribe(ctx, ScheduleChannel)
	defer sub.Close()
	ch := sub.Channel()

	log.Printf("[EventListener] Listening on %s", ScheduleChannel)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Printf("[EventListener] Failed to parse event: %v", err)
				continue
			}
			handle(e)
		}
	}
}

// LocalEmitter hands events straight to in-process subscribers. Used when
// no Redis is configured.
type LocalEmitter struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewLocalEmitter() *LocalEmitter {
	return &LocalEmitter{}
}

func (l *LocalEmitter) Subscribe(handle func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, handle)
}

func (l *LocalEmitter) Emit(_ context.Context, e Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.subs {
		h(e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
