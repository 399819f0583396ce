package domain

import "time"

// Idempotency records the outcome of a compose request so a retried request
// with the same Idempotency-Key returns the persisted message instead of
// sending to the provider twice. Keys are unique per user; ConversationID is
// kept to reject a key reused against another conversation.
type Idempotency struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	UserID         string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_user_key,priority:1"`
	Key            string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_user_key,priority:2"`
	ConversationID string    `gorm:"type:varchar(36);not null"`
	MessageID      string    `gorm:"type:varchar(36);not null"`
	Status         int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
