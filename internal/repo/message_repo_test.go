package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// newRepoDB opens a file-backed SQLite DB in a temp dir and migrates the
// full schema.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedConversation creates a client + conversation pair and returns the
// conversation id.
func seedConversation(t *testing.T, db *gorm.DB, phone string) string {
	t.Helper()
	ctx := context.Background()
	c, _, err := EnsureClient(ctx, db, phone, domain.GenericClientName(phone), nil)
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	conv, _, err := EnsureConversation(ctx, db, c.ID, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv.ID
}

func strp(s string) *string { return &s }

func TestUpsertMessage_SameExternalID_OneRow(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	convID := seedConversation(t, db, "5511999990000")
	sent := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &domain.Message{
		ConversationID: convID,
		MessageID:      strp("ABCD"),
		Sender:         domain.SenderClient,
		Content:        "oi",
		MessageType:    domain.TypeText,
		SentAt:         sent,
		RawData:        datatypes.JSON(`{"v":1}`),
	}
	got1, err := UpsertMessage(ctx, db, first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	again := &domain.Message{
		ConversationID: convID,
		MessageID:      strp("ABCD"),
		Sender:         domain.SenderClient,
		Content:        "oi (edit)",
		MessageType:    domain.TypeText,
		SentAt:         sent,
		RawData:        datatypes.JSON(`{"v":2}`),
	}
	got2, err := UpsertMessage(ctx, db, again)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if got1.ID != got2.ID {
		t.Fatalf("re-delivery produced a new row id: %s vs %s", got1.ID, got2.ID)
	}
	if got2.Content != "oi (edit)" {
		t.Fatalf("last write should win, got content %q", got2.Content)
	}
	n, err := CountMessages(ctx, db, convID)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly one row, got %d (err=%v)", n, err)
	}
}

func TestUpsertMessage_RedeliveryKeepsReadAtAndMedia(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	convID := seedConversation(t, db, "5511999990001")
	sent := time.Now().UTC()

	_, err := UpsertMessage(ctx, db, &domain.Message{
		ConversationID: convID, MessageID: strp("IMG1"), Sender: domain.SenderClient,
		Content: "[Imagem]", MessageType: domain.TypeImage, SentAt: sent,
		MediaURL: strp("https://cdn/x.jpg"), MediaType: strp("image/jpeg"),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := MarkConversationRead(ctx, db, convID, sent.Add(time.Minute)); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	got, err := UpsertMessage(ctx, db, &domain.Message{
		ConversationID: convID, MessageID: strp("IMG1"), Sender: domain.SenderClient,
		Content: "[Imagem]", MessageType: domain.TypeImage, SentAt: sent,
	})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if got.ReadAt == nil {
		t.Fatalf("re-delivery must not reset read_at")
	}
	if got.MediaURL == nil || *got.MediaURL != "https://cdn/x.jpg" {
		t.Fatalf("media url should survive re-delivery without media, got %v", got.MediaURL)
	}
}

func TestUpsertMessage_NoExternalID_PlainInsert(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	convID := seedConversation(t, db, "5511999990002")

	for i := 0; i < 2; i++ {
		m, err := UpsertMessage(ctx, db, &domain.Message{
			ConversationID: convID, MessageID: strp("  "), Sender: domain.SenderUser, FromMe: true,
			Content: "same", MessageType: domain.TypeText, SentAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if m.MessageID != nil {
			t.Fatalf("blank external id should be stored as NULL")
		}
	}
	if n, _ := CountMessages(ctx, db, convID); n != 2 {
		t.Fatalf("expected 2 rows without external ids, got %d", n)
	}
}

func TestListMessagesPage_OrderAndPaging(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	convID := seedConversation(t, db, "5511999990003")

	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		sent := t0
		if id == "c" {
			sent = t0.Add(time.Second)
		}
		if err := db.Create(&domain.Message{
			ID: id, ConversationID: convID, Sender: domain.SenderClient,
			Content: fmt.Sprint(i), SentAt: sent,
		}).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	page, err := ListMessagesPage(ctx, db, convID, 0, 2)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a" || page[1].ID != "b" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	page, _ = ListMessagesPage(ctx, db, convID, 2, 2)
	if len(page) != 1 || page[0].ID != "c" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestCountMessages_NoTable(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := CountMessages(context.Background(), db, "x"); err == nil {
		t.Fatalf("expected error when messages table is missing")
	}
}

func TestUnreadAccounting_MarkReadZeroes(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	convA := seedConversation(t, db, "5511000000001")
	convB := seedConversation(t, db, "5511000000002")
	now := time.Now().UTC()

	const n = 4
	for i := 0; i < n; i++ {
		if _, err := UpsertMessage(ctx, db, &domain.Message{
			ConversationID: convA, MessageID: strp(fmt.Sprintf("A%d", i)), Sender: domain.SenderClient,
			Content: "hi", MessageType: domain.TypeText, SentAt: now,
		}); err != nil {
			t.Fatalf("seed inbound: %v", err)
		}
	}
	// Outbound never counts as unread.
	if _, err := UpsertMessage(ctx, db, &domain.Message{
		ConversationID: convA, Sender: domain.SenderUser, FromMe: true, Content: "hello", SentAt: now,
	}); err != nil {
		t.Fatalf("seed outbound: %v", err)
	}
	if _, err := UpsertMessage(ctx, db, &domain.Message{
		ConversationID: convB, MessageID: strp("B0"), Sender: domain.SenderClient, Content: "x", SentAt: now,
	}); err != nil {
		t.Fatalf("seed other conversation: %v", err)
	}

	if got, _ := CountUnread(ctx, db); got != n+1 {
		t.Fatalf("CountUnread = %d; want %d", got, n+1)
	}

	touched, err := MarkConversationRead(ctx, db, convA, now)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if touched != n {
		t.Fatalf("touched = %d; want %d", touched, n)
	}
	if got, _ := CountUnread(ctx, db); got != 1 {
		t.Fatalf("CountUnread after read = %d; want 1", got)
	}
	// Second receipt is a no-op.
	if touched, _ := MarkConversationRead(ctx, db, convA, now); touched != 0 {
		t.Fatalf("second receipt touched %d rows", touched)
	}
}

func TestMarkConversationRead_EmptyID(t *testing.T) {
	db := newRepoDB(t)
	if _, err := MarkConversationRead(context.Background(), db, "", time.Now()); err == nil {
		t.Fatalf("expected error for empty conversation id")
	}
}
