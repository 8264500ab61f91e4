// Package cache stores encoded API responses. The dashboard computes the
// same accuracy and prediction payloads for every visitor until the process
// restarts, so responses are cached by request key.
package cache

import (
	"context"
	"time"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
