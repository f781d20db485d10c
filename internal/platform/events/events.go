// Package events delivers ledger lifecycle events to Redis Streams or SQS.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
)

// Noop drops every event.
type Noop struct{}

var _ portssvc.EventPublisher = Noop{}

func (Noop) Publish(ctx context.Context, event domain.Event) error { return nil }

func encode(event domain.Event) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}
	return body, nil
}
