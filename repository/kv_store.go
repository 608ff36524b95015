package repository

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("repository: not found")
	ErrAlreadyExists    = errors.New("repository: already exists")
	ErrStoreUnavailable = errors.New("repository: store unavailable")
)

// KeyValueStore is string storage with optional expiry. A ttl of zero keeps
// the value until it is deleted. Get returns ErrNotFound for missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
