// Package realtime carries message change events from the pipelines to
// interested parties: the unread synchronizer, connected UIs over websocket
// and, optionally, a RabbitMQ exchange.
//
// Delivery is best effort. Each subscriber has its own buffer and events
// that do not fit are dropped for that subscriber only.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// EventType mirrors the row operation that produced an event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// ChangeEvent describes a change to the messages table.
type ChangeEvent struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Sender         string          `json:"sender"`
	Message        *domain.Message `json:"message,omitempty"`
	At             time.Time       `json:"at"`
}

// Filter selects events for a subscription. A nil Filter matches all.
type Filter func(ChangeEvent) bool

// SenderIs matches events on messages from sender.
func SenderIs(sender string) Filter {
	return func(ev ChangeEvent) bool { return ev.Sender == sender }
}

// Handler consumes events on the subscription's own goroutine.
type Handler func(ChangeEvent)

// Subscription is a live registration on a Broker.
type Subscription struct {
	id      uint64
	ch      chan ChangeEvent
	filter  Filter
	done    chan struct{}
	dropped atomic.Int64
}

// Dropped reports how many events did not fit the buffer.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Broker is an in-process change feed.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	log    zerolog.Logger
}

// NewBroker returns a Broker whose subscribers buffer up to buffer events.
func NewBroker(buffer int, log zerolog.Logger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		log:    log.With().Str("component", "broker").Logger(),
	}
}

// Publish fans ev out to matching subscribers without blocking.
func (b *Broker) Publish(_ context.Context, ev ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			b.log.Warn().Uint64("subscription", s.id).Str("type", string(ev.Type)).Msg("subscriber buffer full; event dropped")
		}
	}
}

// Subscribe registers handler for events matching filter.
func (b *Broker) Subscribe(filter Filter, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{
		id:     b.nextID,
		ch:     make(chan ChangeEvent, b.buffer),
		filter: filter,
		done:   make(chan struct{}),
	}
	if b.closed {
		close(s.ch)
	} else {
		b.subs[s.id] = s
	}
	go func() {
		defer close(s.done)
		for ev := range s.ch {
			b.dispatch(s, handler, ev)
		}
	}()
	return s
}

func (b *Broker) dispatch(s *Subscription, h Handler, ev ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Uint64("subscription", s.id).Msg("subscriber panicked")
		}
	}()
	h(ev)
}

// Unsubscribe removes s and waits for its handler to drain. Safe to call
// more than once.
func (b *Broker) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		close(s.ch)
	}
	b.mu.Unlock()
	<-s.done
}

// Close removes every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		<-s.done
	}
}
