package domain

import (
	"testing"
	"time"
)

func TestIdempotency_Migration_UniquePerUserKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_idem_user_key") {
		t.Fatalf("expected unique index ux_idem_user_key")
	}

	now := time.Now().UTC()
	rec := Idempotency{
		ID: "i1", UserID: "u1", Key: "k1", ConversationID: "v1",
		MessageID: "m1", Status: 200, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be set by autoCreateTime")
	}

	dup := rec
	dup.ID = "i2"
	dup.ConversationID = "v2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique violation for same (user, key)")
	}

	other := rec
	other.ID = "i3"
	other.UserID = "u2"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("same key for another user should be allowed: %v", err)
	}
}
