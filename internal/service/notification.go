package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/notify"
	"github.com/ayo6706/ledger-core/internal/observability"
)

// NotificationService tells the sending owner about a completed transfer.
type NotificationService struct {
	store    QueryStore
	notifier notify.Notifier
}

func NewNotificationService(store QueryStore, notifier notify.Notifier) *NotificationService {
	return &NotificationService{store: store, notifier: notifier}
}

func (s *NotificationService) HandleTransferEvent(ctx context.Context, event models.OutboxEvent) error {
	var payload TransferEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode transfer event: %w", err)
	}

	owner, err := s.store.Queries().GetOwnerByAccountID(ctx, payload.SenderAccountID)
	if err != nil {
		return fmt.Errorf("load sender owner: %w", err)
	}

	err = s.notifier.Send(ctx, notify.Message{
		To:      owner.Email,
		Subject: "Transfer " + payload.Status,
		Body:    fmt.Sprintf("Transfer %s %s", payload.Amount, payload.Status),
	})
	if err != nil {
		observability.IncrementNotification("failed")
		return fmt.Errorf("send transfer notification: %w", err)
	}
	observability.IncrementNotification("sent")
	return nil
}
