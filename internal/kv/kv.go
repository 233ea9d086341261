// Package kv is the type-agnostic blob persistence used by the quota and
// referral stores. Callers own key naming and encoding.
package kv

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("kv: key not found")

// Store persists opaque values under string keys. A zero ttl means the
// value never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
