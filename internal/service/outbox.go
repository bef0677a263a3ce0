package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/observability"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrOutboxEventNotFailed = errors.New("outbox event is not in FAILED state")

// OutboxHandler performs the side effect recorded by one outbox event. Handlers may
// run more than once for the same event and must tolerate it.
type OutboxHandler func(ctx context.Context, event models.OutboxEvent) error

type OutboxOptions struct {
	MaxAttempts int
	Backoff     RetryPolicy
	StaleAfter  time.Duration
}

// OutboxService dispatches committed outbox events to their handlers.
type OutboxService struct {
	store    QueryStore
	opts     OutboxOptions
	mu       sync.RWMutex
	handlers map[string]OutboxHandler
	now      func() time.Time
}

func NewOutboxService(store QueryStore, opts OutboxOptions) *OutboxService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * time.Minute
	}
	return &OutboxService{
		store:    store,
		opts:     opts,
		handlers: make(map[string]OutboxHandler),
		now:      time.Now,
	}
}

func (s *OutboxService) Register(eventType string, h OutboxHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = h
}

func (s *OutboxService) handler(eventType string) (OutboxHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[eventType]
	return h, ok
}

// Dispatch claims up to batchSize due events, runs their handlers and records the
// outcome. It returns the number of events published.
func (s *OutboxService) Dispatch(ctx context.Context, batchSize int32) (int, error) {
	if err := s.recoverStale(ctx, batchSize); err != nil {
		return 0, err
	}

	events, err := s.claim(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			// Leave the rest for the next run; stale recovery picks them up.
			break
		}
		ok, err := s.process(ctx, event)
		if err != nil {
			zap.L().Error("outbox event bookkeeping failed", zap.Error(err), zap.String("event_id", event.ID.String()))
			continue
		}
		if ok {
			published++
		}
	}

	s.reportBacklog(ctx)
	return published, nil
}

// process runs the handler for one claimed event. It reports whether the event was
// published; the error covers only the status bookkeeping.
func (s *OutboxService) process(ctx context.Context, event models.OutboxEvent) (bool, error) {
	h, ok := s.handler(event.EventType)
	var handleErr error
	if !ok {
		handleErr = fmt.Errorf("no handler registered for %s", event.EventType)
	} else {
		handleErr = h(ctx, event)
	}

	if handleErr == nil {
		observability.IncrementOutboxEvent(event.EventType, "published")
		err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
			_, err := transitionOutboxEvent(ctx, qtx, event.ID, domain.OutboxStatusPublished, func(e *models.OutboxEvent) outboxUpdate {
				return outboxUpdate{attempts: e.Attempts + 1, nextAttemptAt: e.NextAttemptAt}
			})
			return err
		})
		return err == nil, err
	}

	attempts := event.Attempts + 1
	next := domain.OutboxStatusPending
	if !ok || int(attempts) >= s.opts.MaxAttempts {
		next = domain.OutboxStatusFailed
	}
	observability.IncrementOutboxEvent(event.EventType, "failed_attempt")
	zap.L().Warn("outbox handler failed",
		zap.Error(handleErr),
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.Int32("attempts", attempts),
		zap.String("next_status", next),
	)

	msg := handleErr.Error()
	retryAt := s.now().Add(s.opts.Backoff.delay(int(attempts) - 1))
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		_, err := transitionOutboxEvent(ctx, qtx, event.ID, next, func(e *models.OutboxEvent) outboxUpdate {
			return outboxUpdate{attempts: attempts, lastError: &msg, nextAttemptAt: retryAt}
		})
		return err
	})
	return false, err
}

func (s *OutboxService) claim(ctx context.Context, batchSize int32) ([]models.OutboxEvent, error) {
	var claimed []models.OutboxEvent
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		events, err := qtx.GetDueOutboxEvents(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("load due outbox events: %w", err)
		}
		claimed = make([]models.OutboxEvent, 0, len(events))
		for _, e := range events {
			updated, err := transitionOutboxEvent(ctx, qtx, e.ID, domain.OutboxStatusProcessing, nil)
			if err != nil {
				return fmt.Errorf("claim outbox event %s: %w", e.ID, err)
			}
			claimed = append(claimed, *updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// recoverStale returns events left PROCESSING by a dispatcher that died mid-run.
func (s *OutboxService) recoverStale(ctx context.Context, batchSize int32) error {
	var recovered int
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		stale, err := qtx.GetStaleProcessingOutboxEvents(ctx, repository.GetStaleProcessingOutboxEventsParams{
			UpdatedBefore: s.now().Add(-s.opts.StaleAfter),
			Limit:         batchSize,
		})
		if err != nil {
			return fmt.Errorf("load stale outbox events: %w", err)
		}
		for _, e := range stale {
			if _, err := transitionOutboxEvent(ctx, qtx, e.ID, domain.OutboxStatusPending, nil); err != nil {
				return fmt.Errorf("requeue stale outbox event %s: %w", e.ID, err)
			}
		}
		recovered = len(stale)
		return nil
	})
	if err != nil {
		return err
	}
	if recovered > 0 {
		zap.L().Warn("recovered stale outbox events", zap.Int("count", recovered))
	}
	return nil
}

// Requeue moves a FAILED event back to PENDING with a fresh attempt budget.
func (s *OutboxService) Requeue(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	var event *models.OutboxEvent
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		current, err := qtx.GetOutboxEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != domain.OutboxStatusFailed {
			return ErrOutboxEventNotFailed
		}
		event, err = transitionOutboxEvent(ctx, qtx, id, domain.OutboxStatusPending, func(e *models.OutboxEvent) outboxUpdate {
			return outboxUpdate{attempts: 0, lastError: e.LastError, nextAttemptAt: s.now()}
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *OutboxService) reportBacklog(ctx context.Context) {
	queries := s.store.Queries()
	for _, status := range []string{domain.OutboxStatusPending, domain.OutboxStatusFailed} {
		count, err := queries.CountOutboxEventsByStatus(ctx, status)
		if err != nil {
			zap.L().Warn("count outbox backlog failed", zap.Error(err), zap.String("status", status))
			continue
		}
		observability.SetOutboxBacklog(status, count)
	}
}
