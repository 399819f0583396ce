package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Client{}).TableName():              "clients",
		(Conversation{}).TableName():        "conversations",
		(Message{}).TableName():             "messages",
		(InstanceCredentials{}).TableName(): "settings",
		(Idempotency{}).TableName():         "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_UniqueIndexes(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Client{}, &Conversation{}, &Message{}, &InstanceCredentials{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for tbl, idx := range map[any]string{
		&Client{}:              "ux_clients_phone",
		&Conversation{}:        "ux_conversations_client",
		&Message{}:             "ux_messages_message_id",
		&InstanceCredentials{}: "ux_settings_user_instance",
	} {
		if !m.HasIndex(tbl, idx) {
			t.Fatalf("expected index %s on %T", idx, tbl)
		}
	}

	now := time.Now().UTC()
	if err := db.Create(&Client{ID: "c1", Phone: "5511999", Name: "Ana", Status: StatusActive}).Error; err != nil {
		t.Fatalf("insert client: %v", err)
	}
	if err := db.Create(&Client{ID: "c2", Phone: "5511999", Name: "Other"}).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate phone")
	}

	if err := db.Create(&Conversation{ID: "v1", ClientID: "c1", Status: StatusActive, StartedAt: now}).Error; err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	if err := db.Create(&Conversation{ID: "v2", ClientID: "c1", Status: StatusActive, StartedAt: now}).Error; err == nil {
		t.Fatalf("expected unique violation on second conversation for client")
	}

	ext := "wamid-1"
	if err := db.Create(&Message{ID: "m1", ConversationID: "v1", MessageID: &ext, Sender: SenderClient, SentAt: now}).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if err := db.Create(&Message{ID: "m2", ConversationID: "v1", MessageID: &ext, Sender: SenderClient, SentAt: now}).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate message_id")
	}
	// NULL external ids never collide.
	for _, id := range []string{"m3", "m4"} {
		if err := db.Create(&Message{ID: id, ConversationID: "v1", Sender: SenderUser, FromMe: true, SentAt: now}).Error; err != nil {
			t.Fatalf("insert synthetic message %s: %v", id, err)
		}
	}
}

func TestMessage_SenderCheckConstraint(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Client{}, &Conversation{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	now := time.Now().UTC()
	db.Create(&Client{ID: "c1", Phone: "1"})
	db.Create(&Conversation{ID: "v1", ClientID: "c1", StartedAt: now})

	err := db.Create(&Message{ID: "bad", ConversationID: "v1", Sender: "bot", SentAt: now}).Error
	if err == nil {
		t.Fatalf("expected check constraint failure for sender=bot")
	}
}

func TestGenericClientName(t *testing.T) {
	if got := GenericClientName("5511988887777"); got != "Contact 5511988887777" {
		t.Fatalf("GenericClientName = %q", got)
	}
	phone := "5511988887777"
	for _, n := range []string{"", "  ", phone, "Contact " + phone} {
		if !IsGenericClientName(n, phone) {
			t.Fatalf("IsGenericClientName(%q) = false; want true", n)
		}
	}
	for _, n := range []string{"Maria", "Contact 123", "Contact"} {
		if IsGenericClientName(n, phone) {
			t.Fatalf("IsGenericClientName(%q) = true; want false", n)
		}
	}
}

func TestInstanceCredentials_Complete(t *testing.T) {
	if (InstanceCredentials{APIURL: "http://x", APIKey: ""}).Complete() {
		t.Fatalf("missing key must be incomplete")
	}
	if (InstanceCredentials{APIURL: " ", APIKey: "k"}).Complete() {
		t.Fatalf("blank url must be incomplete")
	}
	if !(InstanceCredentials{APIURL: "http://x", APIKey: "k"}).Complete() {
		t.Fatalf("expected complete credentials")
	}
}
