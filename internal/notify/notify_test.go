package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubNotifier struct {
	calls atomic.Int32
	err   error
}

func (s *stubNotifier) Send(ctx context.Context, msg Message) error {
	s.calls.Add(1)
	return s.err
}

func TestLogNotifier_Send(t *testing.T) {
	n := NewLogNotifier(0, zap.NewNop())
	require.NoError(t, n.Send(context.Background(), Message{To: "a@example.com", Subject: "Transfer", Body: "ok"}))

	err := n.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestLogNotifier_RespectsContext(t *testing.T) {
	n := NewLogNotifier(time.Second, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := n.Send(ctx, Message{To: "a@example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogNotifier_FailureRate(t *testing.T) {
	n := NewLogNotifier(0, zap.NewNop())
	n.FailureRate = 1
	assert.ErrorIs(t, n.Send(context.Background(), Message{To: "a@example.com"}), ErrDeliveryFailed)
}

func TestBreakerNotifier_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubNotifier{err: errors.New("smtp down")}
	b := NewBreakerNotifier(stub, BreakerSettings{ConsecutiveFailures: 2, Timeout: time.Minute, MaxRequests: 1}, zap.NewNop())

	ctx := context.Background()
	assert.Error(t, b.Send(ctx, Message{To: "a@example.com"}))
	assert.Error(t, b.Send(ctx, Message{To: "a@example.com"}))
	assert.Equal(t, "open", b.State())

	err := b.Send(ctx, Message{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestBreakerNotifier_PassesThroughSuccess(t *testing.T) {
	stub := &stubNotifier{}
	b := NewBreakerNotifier(stub, DefaultBreakerSettings(), zap.NewNop())
	require.NoError(t, b.Send(context.Background(), Message{To: "a@example.com"}))
	assert.Equal(t, "closed", b.State())
}
