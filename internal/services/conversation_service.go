package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
)

// ConversationService keeps exactly one conversation per client.
type ConversationService struct {
	DB  *gorm.DB
	Log zerolog.Logger
	Now func() time.Time
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, log zerolog.Logger) *ConversationService {
	return &ConversationService{
		DB:  db,
		Log: log.With().Str("component", "conversations").Logger(),
		Now: time.Now,
	}
}

// Resolve returns the conversation id for clientID, starting an active
// conversation assigned to owner if none exists.
func (s *ConversationService) Resolve(ctx context.Context, clientID string, owner *string) (string, error) {
	tr := observability.Tracer("services/conversations")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("client.id", clientID)),
	)
	defer span.End()

	conv, created, err := repo.EnsureConversation(ctx, s.DB, clientID, owner, s.Now().UTC())
	if err != nil {
		return "", err
	}
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.Bool("conversation.created", created),
	)
	return conv.ID, nil
}

// Get returns the conversation or ErrConversationNotFound.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := repo.GetConversation(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return conv, err
}

// Touch moves last_message_at forward. Failures are logged, never returned.
func (s *ConversationService) Touch(ctx context.Context, id string, at time.Time) {
	if err := repo.TouchConversation(ctx, s.DB, id, at); err != nil {
		nonCriticalFailures.WithLabelValues("touch").Inc()
		s.Log.Warn().Err(err).Str("conversation_id", id).Msg("touch conversation failed")
	}
}
