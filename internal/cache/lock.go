package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder keeps the lock past the wait budget.
var ErrLockHeld = errors.New("lock held")

// Lock is a SET NX based mutual exclusion shared through a Provider.
type Lock struct {
	provider Provider
	key      string
	ttl      time.Duration
	logger   *slog.Logger
}

// NewLock creates a lock on key. ttl bounds both how long a crashed holder
// can block others and how long Acquire waits.
func NewLock(provider Provider, key string, ttl time.Duration, logger *slog.Logger) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lock{provider: provider, key: key, ttl: ttl, logger: logger}
}

// TryAcquire makes a single attempt.
func (l *Lock) TryAcquire(ctx context.Context) (func(), error) {
	token := []byte(uuid.NewString())
	ok, err := l.provider.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return l.releaser(token), nil
}

// Acquire retries with exponential backoff until the lock is taken, the ttl
// elapses or ctx is done.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	var release func()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = l.ttl

	op := func() error {
		r, err := l.TryAcquire(ctx)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				return err
			}
			return backoff.Permanent(err)
		}
		release = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return release, nil
}

func (l *Lock) releaser(token []byte) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ok, err := l.provider.DelIfMatch(ctx, l.key, token)
		if err != nil {
			l.logger.Warn("release lock failed", "key", l.key, "error", err)
			return
		}
		if !ok {
			l.logger.Warn("lock expired before release", "key", l.key)
		}
	}
}
