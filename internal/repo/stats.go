// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) and the unread breakdown.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// MessagesStats returns aggregate metadata for messages within a given
// conversation: the total number of rows and the maximum UpdatedAt timestamp
// among those rows. When the conversation has no messages, count is 0 and
// maxUpdatedAt is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// UnreadCount is the number of unread client messages in one conversation.
type UnreadCount struct {
	ConversationID string `json:"conversation_id"`
	Unread         int64  `json:"unread"`
}

// UnreadByConversation groups unread client messages per conversation,
// largest first.
func UnreadByConversation(ctx context.Context, db *gorm.DB) ([]UnreadCount, error) {
	var out []UnreadCount
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("sender = ? AND read_at IS NULL", domain.SenderClient).
		Group("conversation_id").
		Order("unread DESC, conversation_id ASC").
		Scan(&out).Error
	return out, err
}
