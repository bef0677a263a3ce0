package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/google/uuid"
)

// AuditService writes immutable audit trail entries.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

// Write stores a single immutable audit record.
func (s *AuditService) Write(ctx context.Context, qtx *repository.Queries, entityType string, entityID uuid.UUID, action string, metadata []byte) error {
	if _, err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// HandleTransferEvent records a completed transfer in the audit log.
func (s *AuditService) HandleTransferEvent(ctx context.Context, event models.OutboxEvent) error {
	var payload TransferEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode transfer event: %w", err)
	}
	metadata, err := json.Marshal(map[string]any{
		"event_id":            event.ID,
		"sender_account_id":   payload.SenderAccountID,
		"receiver_account_id": payload.ReceiverAccountID,
		"amount":              payload.Amount,
		"status":              payload.Status,
		"strategy":            payload.Strategy,
	})
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		return s.Write(ctx, qtx, "transfer", payload.TransferID, "transfer_completed", metadata)
	})
}
