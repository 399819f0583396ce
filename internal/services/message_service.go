// Package services – MessageService
//
// This file implements MessageService, the read side of a conversation: the
// paginated history shown by the console and the per-conversation unread
// breakdown. Writes go through IngestService and DispatchService.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation identifiers and pagination parameters where applicable.

package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPageSize = 50

// MessageService serves conversation history.
type MessageService struct {
	DB *gorm.DB
}

// ListPage returns paginated messages for a conversation, oldest first.
func (s *MessageService) ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := observability.Tracer("services/messages")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	offset := (page - 1) * pageSize

	// Ensure conversation exists
	var convCount int64
	if err := s.DB.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", conversationID).Count(&convCount).Error; err != nil {
		return nil, 0, err
	}
	if convCount == 0 {
		return nil, 0, ErrConversationNotFound
	}

	total, err := repo.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(ctx, s.DB, conversationID, offset, pageSize)
	return items, total, err
}

// UnreadByConversation returns unread client-message counts per conversation.
func (s *MessageService) UnreadByConversation(ctx context.Context) ([]repo.UnreadCount, error) {
	tr := observability.Tracer("services/messages")
	ctx, span := tr.Start(ctx, "UnreadByConversation")
	defer span.End()

	return repo.UnreadByConversation(ctx, s.DB)
}
