package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func TestOutbox_DispatchesTransferSideEffects(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	notifier := &recordingNotifier{}
	outbox := NewOutboxService(store, OutboxOptions{MaxAttempts: 3})
	outbox.Register(domain.EventTransferNotification, NewNotificationService(store, notifier).HandleTransferEvent)
	outbox.Register(domain.EventTransferAudit, NewAuditService(store).HandleTransferEvent)

	a := openTestAccount(t, store, "50")
	b := openTestAccount(t, store, "0")
	sender, err := store.Queries().GetOwner(ctx, a.OwnerID)
	require.NoError(t, err)

	transfer, err := NewTransferService(store, TransferOptions{}).Transfer(ctx, TransferRequest{
		SenderAccountID:   a.ID,
		ReceiverAccountID: b.ID,
		Amount:            dec("12.5"),
	})
	require.NoError(t, err)

	published, err := outbox.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, sender.Email, notifier.sent[0].To)
	assert.Equal(t, "Transfer 12.5000 COMPLETED", notifier.sent[0].Body)

	entries, err := store.Queries().ListAuditLogByEntity(ctx, "transfer", transfer.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "transfer_completed", entries[0].Action)

	events, err := store.Queries().ListOutboxEventsByAggregate(ctx, transfer.ID)
	require.NoError(t, err)
	for _, e := range events {
		assert.Equal(t, domain.OutboxStatusPublished, e.Status)
		assert.NotNil(t, e.PublishedAt)
		assert.Equal(t, int32(1), e.Attempts)
	}

	// Nothing left to dispatch.
	published, err = outbox.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestOutbox_RetriesThenFails(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	notifier := &recordingNotifier{err: errors.New("smtp down")}
	outbox := NewOutboxService(store, OutboxOptions{MaxAttempts: 2})
	outbox.Register(domain.EventTransferNotification, NewNotificationService(store, notifier).HandleTransferEvent)
	outbox.Register(domain.EventTransferAudit, func(context.Context, models.OutboxEvent) error { return nil })

	a := openTestAccount(t, store, "10")
	b := openTestAccount(t, store, "0")
	transfer, err := NewTransferService(store, TransferOptions{}).Transfer(ctx, TransferRequest{
		SenderAccountID:   a.ID,
		ReceiverAccountID: b.ID,
		Amount:            dec("1"),
	})
	require.NoError(t, err)

	notification := func() models.OutboxEvent {
		events, err := store.Queries().ListOutboxEventsByAggregate(ctx, transfer.ID)
		require.NoError(t, err)
		for _, e := range events {
			if e.EventType == domain.EventTransferNotification {
				return e
			}
		}
		t.Fatal("notification event missing")
		return models.OutboxEvent{}
	}

	_, err = outbox.Dispatch(ctx, 10)
	require.NoError(t, err)
	first := notification()
	assert.Equal(t, domain.OutboxStatusPending, first.Status)
	assert.Equal(t, int32(1), first.Attempts)
	require.NotNil(t, first.LastError)
	assert.Contains(t, *first.LastError, "smtp down")

	_, err = outbox.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusFailed, notification().Status)

	notifier.err = nil
	requeued, err := outbox.Requeue(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusPending, requeued.Status)
	assert.Zero(t, requeued.Attempts)

	_, err = outbox.Requeue(ctx, first.ID)
	assert.ErrorIs(t, err, ErrOutboxEventNotFailed)

	published, err := outbox.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Equal(t, domain.OutboxStatusPublished, notification().Status)
	assert.Len(t, notifier.sent, 1)
}

func TestOutbox_RecoversStaleProcessing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	outbox := NewOutboxService(store, OutboxOptions{StaleAfter: time.Minute})
	var handled int
	outbox.Register(domain.EventTransferNotification, func(context.Context, models.OutboxEvent) error { handled++; return nil })
	outbox.Register(domain.EventTransferAudit, func(context.Context, models.OutboxEvent) error { handled++; return nil })

	a := openTestAccount(t, store, "10")
	b := openTestAccount(t, store, "0")
	_, err := NewTransferService(store, TransferOptions{}).Transfer(ctx, TransferRequest{
		SenderAccountID: a.ID, ReceiverAccountID: b.ID, Amount: dec("1"),
	})
	require.NoError(t, err)

	// Simulate a dispatcher that claimed the events and died.
	_, err = store.Pool().Exec(ctx, `UPDATE outbox_events SET status = 'PROCESSING', updated_at = NOW() - INTERVAL '10 minutes'`)
	require.NoError(t, err)

	published, err := outbox.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, 2, handled)
}
