package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// amqpChannel is the subset of *amqp091.Channel the mirror needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPMirror republishes change events to a topic exchange so other
// processes can follow the same feed. Routing keys are
// "messages.insert" and "messages.update".
type AMQPMirror struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger

	mu sync.Mutex
	ch amqpChannel
}

// DialAMQPMirror connects and declares a durable topic exchange.
func DialAMQPMirror(url, exchange string, log zerolog.Logger) (*AMQPMirror, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPMirror{
		conn:     conn,
		exchange: exchange,
		ch:       ch,
		log:      log.With().Str("component", "amqp-mirror").Logger(),
	}, nil
}

// RoutingKey returns the topic key for ev.
func RoutingKey(ev ChangeEvent) string {
	return "messages." + strings.ToLower(string(ev.Type))
}

// Publish sends ev as a persistent JSON message.
func (m *AMQPMirror) Publish(ctx context.Context, ev ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msgID := uuid.NewString()
	if ev.Message != nil && ev.Message.ID != "" {
		msgID = ev.Message.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch.PublishWithContext(ctx, m.exchange, RoutingKey(ev), false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msgID,
			CorrelationId: ev.ConversationID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
}

// Attach subscribes the mirror to every event on b.
func (m *AMQPMirror) Attach(b *Broker) *Subscription {
	return b.Subscribe(nil, func(ev ChangeEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Publish(ctx, ev); err != nil {
			m.log.Warn().Err(err).Str("key", RoutingKey(ev)).Msg("mirror publish failed")
		}
	})
}

// Close closes the channel and the connection.
func (m *AMQPMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != nil {
		_ = m.ch.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
