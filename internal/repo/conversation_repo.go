// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// EnsureConversation returns the conversation for clientID, starting one at
// now and assigned to assignedTo when none exists. The first row to be
// committed wins; later callers read it back unchanged.
func EnsureConversation(ctx context.Context, db *gorm.DB, clientID string, assignedTo *string, now time.Time) (conv *domain.Conversation, created bool, err error) {
	row := &domain.Conversation{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		AssignedTo: assignedTo,
		Status:     domain.StatusActive,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "client_id"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}

	var out domain.Conversation
	if err := db.WithContext(ctx).Where("client_id = ?", clientID).First(&out).Error; err != nil {
		return nil, false, err
	}
	return &out, res.RowsAffected == 1 && out.ID == row.ID, nil
}

// GetConversation fetches a conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchConversation moves last_message_at forward to at. Older timestamps
// (out-of-order delivery) leave the row as is.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Updates(map[string]any{"last_message_at": at, "updated_at": time.Now().UTC()})
	return res.Error
}
