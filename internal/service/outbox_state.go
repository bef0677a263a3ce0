package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/google/uuid"
)

var outboxTransitions = map[string]map[string]struct{}{
	domain.OutboxStatusPending: {
		domain.OutboxStatusProcessing: {},
		domain.OutboxStatusFailed:     {},
	},
	domain.OutboxStatusProcessing: {
		domain.OutboxStatusPending:   {},
		domain.OutboxStatusPublished: {},
		domain.OutboxStatusFailed:    {},
	},
	domain.OutboxStatusFailed: {
		domain.OutboxStatusPending: {},
	},
	domain.OutboxStatusPublished: {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := outboxTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// outboxUpdate describes the columns written alongside a status change.
type outboxUpdate struct {
	attempts      int32
	lastError     *string
	nextAttemptAt time.Time
}

// transitionOutboxEvent locks the event row, validates the status change and applies it.
// A transition to the current status is a no-op.
func transitionOutboxEvent(ctx context.Context, qtx *repository.Queries, id uuid.UUID, next string, mutate func(e *models.OutboxEvent) outboxUpdate) (*models.OutboxEvent, error) {
	event, err := qtx.GetOutboxEventForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get outbox event %s: %w", id, err)
	}
	if normalizeState(event.Status) == normalizeState(next) {
		return event, nil
	}
	if !canTransition(event.Status, next) {
		return nil, fmt.Errorf("invalid outbox state transition: %s -> %s", event.Status, next)
	}

	upd := outboxUpdate{attempts: event.Attempts, lastError: event.LastError, nextAttemptAt: event.NextAttemptAt}
	if mutate != nil {
		upd = mutate(event)
	}
	rows, err := qtx.UpdateOutboxEventStatus(ctx, repository.UpdateOutboxEventStatusParams{
		ID:            id,
		Status:        next,
		Attempts:      upd.attempts,
		LastError:     upd.lastError,
		NextAttemptAt: upd.nextAttemptAt,
	})
	if err != nil {
		return nil, fmt.Errorf("update outbox event state: %w", err)
	}
	if err := requireExactlyOne(rows, "update outbox event state"); err != nil {
		return nil, err
	}

	event.Status = next
	event.Attempts = upd.attempts
	event.LastError = upd.lastError
	event.NextAttemptAt = upd.nextAttemptAt
	return event, nil
}
