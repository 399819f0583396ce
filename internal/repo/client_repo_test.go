package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

func TestEnsureClient_CreateThenReuse(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	owner := "staff-1"

	c1, created, err := EnsureClient(ctx, db, "5511988887777", "Maria", &owner)
	if err != nil || !created {
		t.Fatalf("first EnsureClient: created=%v err=%v", created, err)
	}
	if c1.Name != "Maria" || c1.Status != domain.StatusActive || c1.CreatedBy == nil || *c1.CreatedBy != owner {
		t.Fatalf("unexpected client: %+v", c1)
	}

	c2, created, err := EnsureClient(ctx, db, "5511988887777", "Someone Else", nil)
	if err != nil {
		t.Fatalf("second EnsureClient: %v", err)
	}
	if created {
		t.Fatalf("second call must not report creation")
	}
	if c2.ID != c1.ID || c2.Name != "Maria" {
		t.Fatalf("existing client should be returned unchanged: %+v", c2)
	}
}

func TestGetClientByPhone_NotFound(t *testing.T) {
	db := newRepoDB(t)
	_, err := GetClientByPhone(context.Background(), db, "000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefineClientName_OnlyFromPlaceholder(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	phone := "5511900001111"

	c, _, err := EnsureClient(ctx, db, phone, domain.GenericClientName(phone), nil)
	if err != nil {
		t.Fatalf("EnsureClient: %v", err)
	}

	changed, err := RefineClientName(ctx, db, c.ID, phone, "João")
	if err != nil || !changed {
		t.Fatalf("expected refinement from placeholder: changed=%v err=%v", changed, err)
	}

	changed, err = RefineClientName(ctx, db, c.ID, phone, "Other")
	if err != nil {
		t.Fatalf("RefineClientName: %v", err)
	}
	if changed {
		t.Fatalf("real name must not be overwritten")
	}

	got, _ := GetClient(ctx, db, c.ID)
	if got.Name != "João" {
		t.Fatalf("name = %q; want João", got.Name)
	}
}

func TestRefineClientName_PhoneAsName(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	phone := "5511900002222"
	c, _, _ := EnsureClient(ctx, db, phone, phone, nil)

	if changed, _ := RefineClientName(ctx, db, c.ID, phone, "Ana"); !changed {
		t.Fatalf("phone-as-name counts as placeholder")
	}
}
