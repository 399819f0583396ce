package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakeChannel struct {
	mu       sync.Mutex
	attempts int
	out      []published
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.out...)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "messages.insert", RoutingKey(ChangeEvent{Type: EventInsert}))
	assert.Equal(t, "messages.update", RoutingKey(ChangeEvent{Type: EventUpdate}))
}

func TestAMQPMirror_Publish(t *testing.T) {
	ch := &fakeChannel{}
	m := &AMQPMirror{exchange: "inbox.events", ch: ch, log: zerolog.Nop()}

	ev := ChangeEvent{
		Type:           EventInsert,
		ConversationID: "conv-9",
		Sender:         domain.SenderClient,
		Message:        &domain.Message{ID: "msg-1", Content: "oi"},
	}
	require.NoError(t, m.Publish(context.Background(), ev))

	out := ch.sent()
	require.Len(t, out, 1)
	assert.Equal(t, "inbox.events", out[0].exchange)
	assert.Equal(t, "messages.insert", out[0].key)
	assert.Equal(t, "application/json", out[0].msg.ContentType)
	assert.Equal(t, amqp091.Persistent, out[0].msg.DeliveryMode)
	assert.Equal(t, "msg-1", out[0].msg.MessageId)
	assert.Equal(t, "conv-9", out[0].msg.CorrelationId)

	var back ChangeEvent
	require.NoError(t, json.Unmarshal(out[0].msg.Body, &back))
	assert.Equal(t, "oi", back.Message.Content)
}

func TestAMQPMirror_AttachFollowsBrokerAndSurvivesErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	m := &AMQPMirror{exchange: "x", ch: ch, log: zerolog.Nop()}
	b := NewBroker(8, zerolog.Nop())
	defer b.Close()

	s := m.Attach(b)
	b.Publish(context.Background(), ChangeEvent{Type: EventUpdate, ConversationID: "c"})
	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return ch.attempts == 1
	}, time.Second, 5*time.Millisecond)

	ch.mu.Lock()
	ch.err = nil
	ch.mu.Unlock()
	b.Publish(context.Background(), ChangeEvent{Type: EventUpdate, ConversationID: "c"})

	require.Eventually(t, func() bool { return len(ch.sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "messages.update", ch.sent()[0].key)
	b.Unsubscribe(s)

	require.NoError(t, m.Close())
	assert.True(t, ch.closed)
}
