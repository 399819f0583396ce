// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read access to provider instance
// credentials stored in the settings table.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// GetInstanceCredentials fetches the credentials row for (userID, instance),
// or ErrNotFound.
func GetInstanceCredentials(ctx context.Context, db *gorm.DB, userID, instance string) (*domain.InstanceCredentials, error) {
	var c domain.InstanceCredentials
	err := db.WithContext(ctx).
		Where("user_id = ? AND instance_name = ?", userID, instance).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindInstanceOwner returns the user owning instance. If several rows share
// the name, the oldest registration wins.
func FindInstanceOwner(ctx context.Context, db *gorm.DB, instance string) (string, error) {
	var c domain.InstanceCredentials
	err := db.WithContext(ctx).
		Where("instance_name = ?", instance).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		return "", err
	}
	return c.UserID, nil
}

// SaveInstanceCredentials inserts or replaces credentials for
// (UserID, InstanceName). Used by seeding and the settings collaborator.
func SaveInstanceCredentials(ctx context.Context, db *gorm.DB, c *domain.InstanceCredentials) error {
	existing, err := GetInstanceCredentials(ctx, db, c.UserID, c.InstanceName)
	switch {
	case err == nil:
		c.ID = existing.ID
		return db.WithContext(ctx).Model(existing).
			Updates(map[string]any{"api_url": c.APIURL, "api_key": c.APIKey}).Error
	case errors.Is(err, ErrNotFound):
		return db.WithContext(ctx).Create(c).Error
	default:
		return err
	}
}
