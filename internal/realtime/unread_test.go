package realtime

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
)

func newRealtimeDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "realtime.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Subscribers recount on their own goroutines; one connection keeps
	// SQLite from reporting "database is locked".
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

type framePusher struct {
	mu     sync.Mutex
	frames []Frame
}

func (p *framePusher) Broadcast(v any) {
	if f, ok := v.(Frame); ok {
		p.mu.Lock()
		p.frames = append(p.frames, f)
		p.mu.Unlock()
	}
}

func (p *framePusher) lastUnread() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.frames) - 1; i >= 0; i-- {
		if p.frames[i].Type == "unread" && p.frames[i].Count != nil {
			return *p.frames[i].Count, true
		}
	}
	return 0, false
}

func insertClientMessages(t *testing.T, db *gorm.DB, b *Broker, convID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		m, err := repo.UpsertMessage(ctx, db, &domain.Message{
			ConversationID: convID,
			MessageID:      &id,
			Sender:         domain.SenderClient,
			Content:        "oi",
			MessageType:    domain.TypeText,
			SentAt:         time.Now(),
		})
		require.NoError(t, err)
		b.Publish(ctx, ChangeEvent{Type: EventInsert, ConversationID: convID, Sender: domain.SenderClient, Message: m})
	}
}

func seedConv(t *testing.T, db *gorm.DB, phone string) string {
	t.Helper()
	ctx := context.Background()
	c, _, err := repo.EnsureClient(ctx, db, phone, domain.GenericClientName(phone), nil)
	require.NoError(t, err)
	conv, _, err := repo.EnsureConversation(ctx, db, c.ID, nil, time.Now())
	require.NoError(t, err)
	return conv.ID
}

func TestUnreadSynchronizer_CountsAndMarksRead(t *testing.T) {
	db := newRealtimeDB(t)
	b := NewBroker(16, zerolog.Nop())
	defer b.Close()
	push := &framePusher{}
	s := NewUnreadSynchronizer(db, b, push, zerolog.Nop())

	convA := seedConv(t, db, "5511900000001")
	convB := seedConv(t, db, "5511900000002")
	insertClientMessages(t, db, b, convA, 2)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.Connected())
	assert.EqualValues(t, 2, s.Count())

	insertClientMessages(t, db, b, convA, 1)
	insertClientMessages(t, db, b, convB, 2)
	require.Eventually(t, func() bool { return s.Count() == 5 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		n, ok := push.lastUnread()
		return ok && n == 5
	}, 2*time.Second, 10*time.Millisecond)

	n, err := s.MarkRead(context.Background(), convA)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.Eventually(t, func() bool { return s.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	n, err = s.MarkRead(context.Background(), convB)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.Eventually(t, func() bool { return s.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Idempotent: a second receipt changes nothing.
	n, err = s.MarkRead(context.Background(), convB)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestUnreadSynchronizer_IgnoresOutboundEvents(t *testing.T) {
	db := newRealtimeDB(t)
	b := NewBroker(16, zerolog.Nop())
	defer b.Close()
	s := NewUnreadSynchronizer(db, b, nil, zerolog.Nop())
	require.NoError(t, s.Connect(context.Background()))

	conv := seedConv(t, db, "5511900000003")
	_, err := repo.UpsertMessage(context.Background(), db, &domain.Message{
		ConversationID: conv,
		Sender:         domain.SenderUser,
		FromMe:         true,
		Content:        "resposta",
		MessageType:    domain.TypeText,
		SentAt:         time.Now(),
	})
	require.NoError(t, err)
	b.Publish(context.Background(), ChangeEvent{Type: EventInsert, ConversationID: conv, Sender: domain.SenderUser})
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, s.Count())
}

func TestUnreadSynchronizer_DisconnectStopsFollowing(t *testing.T) {
	db := newRealtimeDB(t)
	b := NewBroker(16, zerolog.Nop())
	defer b.Close()
	s := NewUnreadSynchronizer(db, b, nil, zerolog.Nop())
	require.NoError(t, s.Connect(context.Background()))
	s.Disconnect()
	s.Disconnect()
	assert.False(t, s.Connected())

	conv := seedConv(t, db, "5511900000004")
	insertClientMessages(t, db, b, conv, 3)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, s.Count())

	require.NoError(t, s.Refresh(context.Background()))
	assert.EqualValues(t, 3, s.Count())
}

func TestUnreadSynchronizer_MarkReadRejectsEmptyID(t *testing.T) {
	db := newRealtimeDB(t)
	b := NewBroker(4, zerolog.Nop())
	defer b.Close()
	s := NewUnreadSynchronizer(db, b, nil, zerolog.Nop())

	_, err := s.MarkRead(context.Background(), " ")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
