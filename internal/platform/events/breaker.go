package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/sony/gobreaker"
)

// BreakerPublisher stops calling a failing publisher for a while so a broken
// broker does not add latency to every ledger write.
type BreakerPublisher struct {
	next    portssvc.EventPublisher
	breaker *gobreaker.CircuitBreaker
}

var _ portssvc.EventPublisher = (*BreakerPublisher)(nil)

// BreakerSettings tunes when the breaker opens and how long it stays open.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

func NewBreakerPublisher(name string, next portssvc.EventPublisher, settings BreakerSettings) *BreakerPublisher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "events-" + name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Event publisher circuit changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerPublisher{next: next, breaker: cb}
}

func (p *BreakerPublisher) Publish(ctx context.Context, event domain.Event) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.next.Publish(ctx, event)
	})
	return err
}

// State reports the breaker state, mainly for health output.
func (p *BreakerPublisher) State() string {
	return p.breaker.State().String()
}
