// Package cache offers a read cache for generated exam artifacts so the
// retrieval API does not hit the store on every quiz load.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when the requested exam is not cached.
var ErrMiss = errors.New("cache miss")

// Cache stores serialized exam artifacts by name.
type Cache interface {
	GetExam(ctx context.Context, name string) ([]byte, error)
	SetExam(ctx context.Context, name string, data []byte, ttl time.Duration) error
	InvalidateExam(ctx context.Context, name string) error
}
