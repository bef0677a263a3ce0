package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedStrategy = errors.New("unsupported transfer strategy")

type TransferRequest struct {
	SenderAccountID   uuid.UUID
	ReceiverAccountID uuid.UUID
	Amount            decimal.Decimal
	Strategy          domain.Strategy
}

// TransferEngine moves funds between two accounts inside a transaction owned by the
// caller. It holds no state; on any error the caller must roll back.
type TransferEngine struct{}

func NewTransferEngine() *TransferEngine {
	return &TransferEngine{}
}

// Transfer debits the sender, credits the receiver and appends a COMPLETED transfer.
// Failures are reported in this order: invalid amount, sender not found, receiver
// not found, self-transfer, insufficient funds.
func (e *TransferEngine) Transfer(ctx context.Context, store LedgerStore, req TransferRequest) (*models.Transfer, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	var (
		plan *transferPlan
		err  error
	)
	switch req.Strategy {
	case domain.StrategyPessimistic:
		plan, err = e.lockAndPlan(ctx, store, req)
		if err != nil {
			return nil, err
		}
		if err := e.applyLocked(ctx, store, plan); err != nil {
			return nil, err
		}
	case domain.StrategyOptimistic:
		plan, err = e.readAndPlan(ctx, store, req)
		if err != nil {
			return nil, err
		}
		if err := e.applyIfUnchanged(ctx, store, plan); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, req.Strategy)
	}

	transfer := &models.Transfer{
		ID:                uuid.New(),
		SenderAccountID:   plan.sender.ID,
		ReceiverAccountID: plan.receiver.ID,
		Amount:            plan.amount,
		Status:            domain.TransferStatusCompleted,
	}
	if err := store.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	return transfer, nil
}

// lockAndPlan takes the row locks in ascending id order, which keeps two transfers
// over the same pair of accounts from deadlocking each other, then reports failures
// in the documented order regardless of which row was locked first.
func (e *TransferEngine) lockAndPlan(ctx context.Context, store LedgerStore, req TransferRequest) (*transferPlan, error) {
	locked := make(map[uuid.UUID]*models.Account, 2)
	for _, id := range lockOrder(req.SenderAccountID, req.ReceiverAccountID) {
		acc, err := store.GetAccountForUpdate(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		locked[id] = acc
	}

	sender, ok := locked[req.SenderAccountID]
	if !ok {
		return nil, &models.AccountNotFoundError{Party: domain.PartySender, AccountID: req.SenderAccountID}
	}
	receiver, ok := locked[req.ReceiverAccountID]
	if !ok {
		return nil, &models.AccountNotFoundError{Party: domain.PartyReceiver, AccountID: req.ReceiverAccountID}
	}
	return planTransfer(sender, receiver, req.Amount)
}

func (e *TransferEngine) applyLocked(ctx context.Context, store LedgerStore, plan *transferPlan) error {
	rows, err := store.UpdateAccountBalance(ctx, plan.sender.ID, plan.senderBalance)
	if err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	if err := requireExactlyOne(rows, "debit sender"); err != nil {
		return err
	}

	rows, err = store.UpdateAccountBalance(ctx, plan.receiver.ID, plan.receiverBalance)
	if err != nil {
		return fmt.Errorf("credit receiver: %w", err)
	}
	return requireExactlyOne(rows, "credit receiver")
}

func (e *TransferEngine) readAndPlan(ctx context.Context, store LedgerStore, req TransferRequest) (*transferPlan, error) {
	sender, err := readParty(ctx, store, domain.PartySender, req.SenderAccountID)
	if err != nil {
		return nil, err
	}
	receiver, err := readParty(ctx, store, domain.PartyReceiver, req.ReceiverAccountID)
	if err != nil {
		return nil, err
	}
	return planTransfer(sender, receiver, req.Amount)
}

// applyIfUnchanged writes each balance only if the account still carries the version
// observed by readAndPlan. The sender is written first.
func (e *TransferEngine) applyIfUnchanged(ctx context.Context, store LedgerStore, plan *transferPlan) error {
	rows, err := store.UpdateAccountBalanceIfVersion(ctx, plan.sender.ID, plan.sender.Version, plan.senderBalance)
	if err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	if rows == 0 {
		return &models.ConcurrencyConflictError{Party: domain.PartySender, AccountID: plan.sender.ID}
	}

	rows, err = store.UpdateAccountBalanceIfVersion(ctx, plan.receiver.ID, plan.receiver.Version, plan.receiverBalance)
	if err != nil {
		return fmt.Errorf("credit receiver: %w", err)
	}
	if rows == 0 {
		return &models.ConcurrencyConflictError{Party: domain.PartyReceiver, AccountID: plan.receiver.ID}
	}
	return nil
}

func readParty(ctx context.Context, store LedgerStore, party domain.Party, id uuid.UUID) (*models.Account, error) {
	acc, err := store.GetAccount(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &models.AccountNotFoundError{Party: party, AccountID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s account: %w", party, err)
	}
	return acc, nil
}

func lockOrder(a, b uuid.UUID) []uuid.UUID {
	switch bytes.Compare(a[:], b[:]) {
	case 0:
		return []uuid.UUID{a}
	case 1:
		return []uuid.UUID{b, a}
	default:
		return []uuid.UUID{a, b}
	}
}
