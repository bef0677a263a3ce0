package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnavailable is returned without calling the wrapped notifier while the breaker is open.
var ErrUnavailable = errors.New("notifier unavailable")

type BreakerSettings struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
	MaxRequests         uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
		MaxRequests:         1,
	}
}

// BreakerNotifier stops calling a failing notifier until Timeout has passed.
type BreakerNotifier struct {
	next    Notifier
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerNotifier(next Notifier, cfg BreakerSettings, logger *zap.Logger) *BreakerNotifier {
	if logger == nil {
		logger = zap.L()
	}
	settings := gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerNotifier{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerNotifier) Send(ctx context.Context, msg Message) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// State reports the breaker state as "closed", "half-open" or "open".
func (b *BreakerNotifier) State() string {
	return b.breaker.State().String()
}
