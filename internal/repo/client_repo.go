// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Client
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction. They follow the "thin repository" approach: only
// persistence and query composition, no business rules.
//
// Error semantics:
//   - When a client is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound).
//   - Other DB errors are propagated unchanged.
//
// Creation never uses check-then-insert. EnsureClient inserts with
// ON CONFLICT (phone) DO NOTHING and then reads the surviving row, so two
// concurrent first contacts from the same phone converge on one client.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// EnsureClient returns the client for phone, creating it with name and
// createdBy when absent. created reports whether this call inserted the row.
func EnsureClient(ctx context.Context, db *gorm.DB, phone, name string, createdBy *string) (c *domain.Client, created bool, err error) {
	now := time.Now().UTC()
	row := &domain.Client{
		ID:        uuid.NewString(),
		Phone:     phone,
		Name:      name,
		Status:    domain.StatusActive,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}

	c, err = GetClientByPhone(ctx, db, phone)
	if err != nil {
		return nil, false, err
	}
	return c, res.RowsAffected == 1 && c.ID == row.ID, nil
}

// GetClientByPhone fetches a client by normalized phone.
func GetClientByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Client, error) {
	var c domain.Client
	if err := db.WithContext(ctx).Where("phone = ?", phone).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClient fetches a client by id.
func GetClient(ctx context.Context, db *gorm.DB, id string) (*domain.Client, error) {
	var c domain.Client
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// RefineClientName replaces a placeholder name with name. The update is
// conditional on the stored name still being a placeholder, so a real name
// written concurrently is never clobbered. It reports whether a row changed.
func RefineClientName(ctx context.Context, db *gorm.DB, id, phone, name string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Client{}).
		Where("id = ? AND (name = '' OR name = ? OR name = ?)", id, phone, domain.GenericClientName(phone)).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
