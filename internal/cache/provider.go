package cache

import (
	"context"
	"time"
)

// Provider defines the key operations the correlation window lock needs.
type Provider interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DelIfMatch removes key only while it still holds value.
	DelIfMatch(ctx context.Context, key string, value []byte) (bool, error)
	Close() error
}
