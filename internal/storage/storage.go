// Package storage writes media blobs to a backend and returns the URL under
// which each blob is publicly reachable.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-whatsapp-inbox/internal/config"
)

// ErrDisabled is returned by stores that are not configured.
var ErrDisabled = errors.New("media storage backend is not configured")

// Store persists a blob under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "local":
		return NewLocalStore(cfg.LocalPath, cfg.PublicBaseURL, log)
	case "s3":
		return NewS3Store(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// cleanKey rejects keys that could escape the bucket or root directory.
func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.ReplaceAll(key, "\\", "/"), "/")
	if k == "" {
		return "", errors.New("empty storage key")
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("invalid storage key %q", key)
		}
	}
	return k, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
