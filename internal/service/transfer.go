package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/observability"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferService owns the transaction around each engine call. It commits on
// success, rolls back on failure and re-runs optimistic transfers that lost a race.
type TransferService struct {
	store           QueryStore
	engine          *TransferEngine
	defaultStrategy domain.Strategy
	retry           RetryPolicy
}

type TransferOptions struct {
	DefaultStrategy domain.Strategy
	Retry           RetryPolicy
}

func NewTransferService(store QueryStore, opts TransferOptions) *TransferService {
	if !opts.DefaultStrategy.Valid() {
		opts.DefaultStrategy = domain.StrategyPessimistic
	}
	return &TransferService{
		store:           store,
		engine:          NewTransferEngine(),
		defaultStrategy: opts.DefaultStrategy,
		retry:           opts.Retry,
	}
}

// DefaultStrategy is used when a request does not name one.
func (s *TransferService) DefaultStrategy() domain.Strategy {
	return s.defaultStrategy
}

// TransferEvent is the payload recorded in the outbox for every completed transfer.
type TransferEvent struct {
	TransferID        uuid.UUID `json:"transfer_id"`
	SenderAccountID   uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id"`
	Amount            string    `json:"amount"`
	Status            string    `json:"status"`
	Strategy          string    `json:"strategy"`
	CreatedAt         time.Time `json:"created_at"`
}

func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*models.Transfer, error) {
	if req.Strategy == "" {
		req.Strategy = s.defaultStrategy
	}

	policy := RetryPolicy{MaxAttempts: 1}
	if req.Strategy == domain.StrategyOptimistic {
		policy = s.retry
	}

	start := time.Now()
	var transfer *models.Transfer
	err := retry(ctx, policy, isContention, func(attempt int) error {
		err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
			var err error
			transfer, err = s.engine.Transfer(ctx, qtx, req)
			if err != nil {
				return err
			}
			return enqueueTransferEvents(ctx, qtx, transfer, req.Strategy)
		})
		if err != nil && isContention(err) {
			s.recordContention(err, req, attempt, policy.attempts())
		}
		return err
	})

	result := transferResult(err)
	observability.ObserveTransfer(string(req.Strategy), result, time.Since(start))
	if err != nil {
		if !models.IsBusinessError(err) && !errors.Is(err, ErrUnsupportedStrategy) {
			zap.L().Error("transfer failed",
				zap.Error(err),
				zap.String("strategy", string(req.Strategy)),
				zap.String("sender_account_id", req.SenderAccountID.String()),
				zap.String("receiver_account_id", req.ReceiverAccountID.String()),
			)
		}
		return nil, err
	}

	zap.L().Info("transfer completed",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("strategy", string(req.Strategy)),
		zap.String("amount", domain.FormatAmount(transfer.Amount)),
	)
	return transfer, nil
}

func (s *TransferService) GetTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	return s.store.Queries().GetTransfer(ctx, id)
}

func (s *TransferService) recordContention(err error, req TransferRequest, attempt, maxAttempts int) {
	var conflict *models.ConcurrencyConflictError
	reason := "deadlock"
	if errors.As(err, &conflict) {
		reason = "conflict"
		observability.IncrementTransferConflict(string(conflict.Party))
	}
	if attempt < maxAttempts {
		observability.IncrementTransferRetry(reason)
	}
	zap.L().Warn("transfer contention",
		zap.String("reason", reason),
		zap.String("strategy", string(req.Strategy)),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", maxAttempts),
		zap.Error(err),
	)
}

// isContention reports failures caused by a competing transaction rather than the
// request itself. Re-running the transfer against fresh state may succeed.
func isContention(err error) bool {
	return errors.Is(err, models.ErrConcurrencyConflict) || errors.Is(err, models.ErrDeadlock)
}

func transferResult(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, models.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, models.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, models.ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, models.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, models.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, models.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, models.ErrDeadlock):
		return "deadlock"
	default:
		return "error"
	}
}

// enqueueTransferEvents records the post-commit side effects of a transfer in the
// same transaction, so they exist only if the transfer commits.
func enqueueTransferEvents(ctx context.Context, qtx *repository.Queries, t *models.Transfer, strategy domain.Strategy) error {
	payload, err := json.Marshal(TransferEvent{
		TransferID:        t.ID,
		SenderAccountID:   t.SenderAccountID,
		ReceiverAccountID: t.ReceiverAccountID,
		Amount:            domain.FormatAmount(t.Amount),
		Status:            t.Status,
		Strategy:          string(strategy),
		CreatedAt:         t.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal transfer event: %w", err)
	}

	for _, eventType := range []string{domain.EventTransferNotification, domain.EventTransferAudit} {
		if err := qtx.InsertOutboxEvent(ctx, repository.InsertOutboxEventParams{
			ID:          uuid.New(),
			EventType:   eventType,
			AggregateID: t.ID,
			Payload:     payload,
		}); err != nil {
			return fmt.Errorf("enqueue %s: %w", eventType, err)
		}
	}
	return nil
}
