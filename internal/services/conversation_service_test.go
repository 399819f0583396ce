package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

func TestConversationService_ConcurrentFirstContact(t *testing.T) {
	db := newMsgDB(t)
	ids := NewIdentityService(db, nop)
	convs := NewConversationService(db, nop)
	ctx := context.Background()

	const workers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		got   [workers]string
		errs  [workers]error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			clientID, err := ids.Resolve(ctx, "5511955550000", "", nil)
			if err != nil {
				errs[i] = err
				return
			}
			got[i], errs[i] = convs.Resolve(ctx, clientID, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if got[i] == "" || got[i] != got[0] {
			t.Fatalf("worker %d got conversation %q, want %q", i, got[i], got[0])
		}
	}
	var n int64
	db.Model(&domain.Conversation{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected exactly one conversation, got %d", n)
	}
}

func TestConversationService_FirstOwnerWins(t *testing.T) {
	db := newMsgDB(t)
	ids := NewIdentityService(db, nop)
	convs := NewConversationService(db, nop)
	ctx := context.Background()
	first, second := "staff-a", "staff-b"

	clientID, err := ids.Resolve(ctx, "5511944440000", "", nil)
	if err != nil {
		t.Fatalf("Resolve client: %v", err)
	}
	id, err := convs.Resolve(ctx, clientID, &first)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if again, _ := convs.Resolve(ctx, clientID, &second); again != id {
		t.Fatalf("expected same conversation, got %q and %q", id, again)
	}

	conv, err := convs.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv.AssignedTo == nil || *conv.AssignedTo != first {
		t.Fatalf("expected assignee %q, got %v", first, conv.AssignedTo)
	}
	if conv.Status != domain.StatusActive {
		t.Fatalf("expected active, got %q", conv.Status)
	}
}

func TestConversationService_GetNotFound(t *testing.T) {
	db := newMsgDB(t)
	convs := NewConversationService(db, nop)
	if _, err := convs.Get(context.Background(), "nope"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestConversationService_TouchMovesForward(t *testing.T) {
	db := newMsgDB(t)
	convs := NewConversationService(db, nop)
	ctx := context.Background()
	id := seedConv(t, db, "5511933330000")

	later := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	convs.Touch(ctx, id, later)
	convs.Touch(ctx, id, later.Add(-time.Hour))

	conv, _ := convs.Get(ctx, id)
	if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(later) {
		t.Fatalf("expected last_message_at %v, got %v", later, conv.LastMessageAt)
	}
}
