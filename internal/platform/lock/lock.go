// Package lock serializes work on a key across processes.
package lock

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisLocker holds a redsync mutex for the duration of fn.
type RedisLocker struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

var _ portssvc.KeyedLocker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(client)),
		expiry:     expiry,
		tries:      32,
		retryDelay: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return apperrors.NewValidation("lock key must not be empty")
	}

	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(l.retryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.KindPersistenceTimeout, err, "waiting for lock %s", key)
		}
		return apperrors.Wrap(apperrors.KindConflict, err, "lock %s is held elsewhere", key)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			slog.WarnContext(ctx, "Failed to release lock", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}

// LocalLocker serializes by key within one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

var _ portssvc.KeyedLocker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.KindPersistenceTimeout, ctx.Err(), "waiting for lock %s", key)
	}
	defer func() { <-kl.ch }()

	return fn(ctx)
}
