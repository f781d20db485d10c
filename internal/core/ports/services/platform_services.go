package services

import (
	"context"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
)

// EventPublisher delivers lifecycle events to an outbound channel.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// KeyedLocker serializes work sharing the same key, possibly across processes.
type KeyedLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
