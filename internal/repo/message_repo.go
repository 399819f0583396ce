// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the idempotent upsert keyed on the provider message id and
// the read-receipt mutation.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// upsertColumns are overwritten when a message with the same external id is
// delivered again. read_at, sender, from_me and conversation_id are never
// part of the set.
var upsertColumns = []string{"content", "message_type", "sent_at", "raw_data", "updated_at"}

// mediaColumns keep their stored value when the re-delivered payload has none.
var mediaColumns = []string{"media_url", "media_type", "file_name", "file_size"}

// UpsertMessage writes m and returns the stored row. With an external
// MessageID the write is INSERT .. ON CONFLICT (message_id) DO UPDATE, so any
// number of deliveries leaves one row; without one it is a plain insert.
func UpsertMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.MessageID != nil && strings.TrimSpace(*m.MessageID) == "" {
		m.MessageID = nil
	}

	if m.MessageID == nil {
		if err := db.WithContext(ctx).Create(m).Error; err != nil {
			return nil, err
		}
		return m, nil
	}

	set := clause.AssignmentColumns(upsertColumns)
	for _, col := range mediaColumns {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr("COALESCE(excluded." + col + ", messages." + col + ")"),
		})
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoUpdates: set,
		}).
		Create(m).Error
	if err != nil {
		return nil, err
	}
	return GetMessageByExternalID(ctx, db, *m.MessageID)
}

// GetMessage fetches a message by primary key.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByExternalID fetches a message by provider message id.
func GetMessageByExternalID(ctx context.Context, db *gorm.DB, messageID string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("message_id = ?", messageID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (SentAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountUnread counts client messages with no read receipt across all
// conversations.
func CountUnread(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("sender = ? AND read_at IS NULL", domain.SenderClient).
		Count(&n).Error
	return n, err
}

// MarkConversationRead stamps read_at on every unread client message in the
// conversation with one server-side statement and returns the affected count.
// On Postgres it calls mark_conversation_read; elsewhere it issues the
// equivalent single UPDATE.
func MarkConversationRead(ctx context.Context, db *gorm.DB, conversationID string, at time.Time) (int64, error) {
	if conversationID == "" {
		return 0, errors.New("conversation id is empty")
	}
	if isPostgres(db) {
		var n int64
		err := db.WithContext(ctx).Raw("SELECT mark_conversation_read(?)", conversationID).Scan(&n).Error
		return n, err
	}
	res := db.WithContext(ctx).Exec(
		"UPDATE messages SET read_at = ?, updated_at = ? WHERE conversation_id = ? AND sender = ? AND read_at IS NULL",
		at, time.Now().UTC(), conversationID, domain.SenderClient,
	)
	return res.RowsAffected, res.Error
}
