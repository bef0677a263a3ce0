package repository

import (
	"errors"
	"fmt"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgDeadlockDetected  = "40P01"
	ownerUniqueIndex    = "accounts_owner_id_key"
	ownerEmailUniqueKey = "owners_email_key"
)

// classifyError maps driver failures onto the ledger's error taxonomy while keeping
// the original error in the chain.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", models.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgLockNotAvailable:
		return fmt.Errorf("%w: %w", models.ErrLockTimeout, err)
	case pgDeadlockDetected:
		return fmt.Errorf("%w: %w", models.ErrDeadlock, err)
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case ownerUniqueIndex:
			return fmt.Errorf("%w: %w", models.ErrDuplicateOwner, err)
		case ownerEmailUniqueKey:
			return fmt.Errorf("%w: %w", models.ErrDuplicateEmail, err)
		}
	}
	return err
}
