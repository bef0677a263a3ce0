package models

import (
	"errors"
	"fmt"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Business failures returned by the transfer engine. They are expected outcomes:
// the caller rolls back and decides whether to retry.
var (
	ErrInvalidAmount       = errors.New("transfer amount must be greater than zero")
	ErrAccountNotFound     = errors.New("account not found")
	ErrSelfTransfer        = errors.New("cannot transfer funds to the same account")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrConcurrencyConflict = errors.New("account was modified by another transaction")
)

// Store-level failures.
var (
	ErrNotFound       = errors.New("record not found")
	ErrLockTimeout    = errors.New("lock wait timeout")
	ErrDeadlock       = errors.New("deadlock detected")
	ErrDuplicateOwner = errors.New("owner already has an account")
	ErrDuplicateEmail = errors.New("email already registered")
)

type AccountNotFoundError struct {
	Party     domain.Party
	AccountID uuid.UUID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("%s account %s not found", e.Party, e.AccountID)
}

func (e *AccountNotFoundError) Unwrap() error { return ErrAccountNotFound }

type InsufficientFundsError struct {
	AccountID uuid.UUID
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: required %s, available %s",
		e.AccountID, domain.FormatAmount(e.Required), domain.FormatAmount(e.Available))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

type ConcurrencyConflictError struct {
	Party     domain.Party
	AccountID uuid.UUID
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s account %s was modified by another transaction, retry the transfer", e.Party, e.AccountID)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// IsBusinessError reports whether err is one of the engine's expected outcomes
// rather than an unexpected failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrConcurrencyConflict)
}
