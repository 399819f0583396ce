package realtime

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
)

// Pusher delivers frames to connected UIs. *Hub implements it.
type Pusher interface {
	Broadcast(v any)
}

// UnreadSynchronizer keeps the global count of unread client messages
// current. Every client-message event triggers a full recount.
type UnreadSynchronizer struct {
	db     *gorm.DB
	broker *Broker
	push   Pusher
	log    zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	sub   *Subscription
	count atomic.Int64
}

// NewUnreadSynchronizer wires the synchronizer; push may be nil.
func NewUnreadSynchronizer(db *gorm.DB, broker *Broker, push Pusher, log zerolog.Logger) *UnreadSynchronizer {
	return &UnreadSynchronizer{
		db:     db,
		broker: broker,
		push:   push,
		log:    log.With().Str("component", "unread-sync").Logger(),
		now:    time.Now,
	}
}

// Connect recounts and starts following client-message events. Calling it
// again while connected is a no-op.
func (s *UnreadSynchronizer) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}
	s.sub = s.broker.Subscribe(SenderIs(domain.SenderClient), func(ChangeEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("unread recount failed")
		}
	})
	return nil
}

// Disconnect stops following events.
func (s *UnreadSynchronizer) Disconnect() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	s.broker.Unsubscribe(sub)
}

// Connected reports whether the synchronizer follows the feed.
func (s *UnreadSynchronizer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

// Count is the last computed unread total.
func (s *UnreadSynchronizer) Count() int64 { return s.count.Load() }

// MarkRead stamps read_at on every unread client message of the
// conversation, publishes an UPDATE event and returns the rows changed.
func (s *UnreadSynchronizer) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	ctx, span := observability.Tracer("realtime").Start(ctx, "MarkRead",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	if strings.TrimSpace(conversationID) == "" {
		return 0, repo.ErrNotFound
	}
	n, err := repo.MarkConversationRead(ctx, s.db, conversationID, s.now())
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("messages.marked", n))

	s.broker.Publish(ctx, ChangeEvent{
		Type:           EventUpdate,
		ConversationID: conversationID,
		Sender:         domain.SenderClient,
		At:             s.now(),
	})
	if err := s.refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("unread recount after read receipt failed")
	}
	return n, nil
}

// Refresh recounts on demand.
func (s *UnreadSynchronizer) Refresh(ctx context.Context) error { return s.refresh(ctx) }

func (s *UnreadSynchronizer) refresh(ctx context.Context) error {
	n, err := repo.CountUnread(ctx, s.db)
	if err != nil {
		return err
	}
	s.count.Store(n)
	if s.push != nil {
		s.push.Broadcast(UnreadFrame(n))
	}
	return nil
}
