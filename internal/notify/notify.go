package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages to account owners.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier stands in for an SMTP relay: it waits Latency, fails with probability
// FailureRate and otherwise logs the message.
type LogNotifier struct {
	Latency     time.Duration
	FailureRate float64
	logger      *zap.Logger
}

func NewLogNotifier(latency time.Duration, logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{Latency: latency, logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("%w: empty recipient", ErrDeliveryFailed)
	}
	if n.Latency > 0 {
		timer := time.NewTimer(n.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("notification canceled: %w", ctx.Err())
		}
	}
	if n.FailureRate > 0 && rand.Float64() < n.FailureRate {
		return fmt.Errorf("%w: relay temporarily unavailable", ErrDeliveryFailed)
	}

	n.logger.Info("notification sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
