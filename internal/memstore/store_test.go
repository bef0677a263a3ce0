package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, balance string) models.Account {
	t.Helper()
	a, err := s.AddAccount(models.Account{Balance: decimal.RequireFromString(balance)})
	require.NoError(t, err)
	return a
}

func TestAddAccount_OwnerUnique(t *testing.T) {
	s := New()
	a := seed(t, s, "10")
	assert.Equal(t, int64(1), a.Version)
	assert.True(t, a.OpeningBalance.Equal(a.Balance))

	_, err := s.AddAccount(models.Account{OwnerID: a.OwnerID})
	assert.ErrorIs(t, err, models.ErrDuplicateOwner)
}

func TestTx_WritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "100")

	tx := s.Begin(ctx)
	rows, err := tx.UpdateAccountBalance(ctx, a.ID, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	own, err := tx.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "40", own.Balance.String())

	committed, _ := s.Account(a.ID)
	assert.Equal(t, "100", committed.Balance.String())
	assert.Equal(t, int64(1), committed.Version)

	require.NoError(t, tx.Commit())
	committed, _ = s.Account(a.ID)
	assert.Equal(t, "40", committed.Balance.String())
	assert.Equal(t, int64(2), committed.Version)
}

func TestTx_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "100")
	b := seed(t, s, "0")

	err := s.RunInTx(ctx, func(tx *Tx) error {
		_, err := tx.UpdateAccountBalance(ctx, a.ID, decimal.NewFromInt(1))
		require.NoError(t, err)
		require.NoError(t, tx.CreateTransfer(ctx, &models.Transfer{ID: uuid.New(), SenderAccountID: a.ID, ReceiverAccountID: b.ID, Amount: decimal.NewFromInt(99)}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	committed, _ := s.Account(a.ID)
	assert.Equal(t, "100", committed.Balance.String())
	assert.Empty(t, s.Transfers())

	// Locks were released by the rollback.
	tx := s.Begin(ctx)
	_, err = tx.GetAccountForUpdate(ctx, a.ID)
	require.NoError(t, err)
	tx.Rollback()
}

func TestConditionalUpdate_VersionMismatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "100")

	require.NoError(t, s.RunInTx(ctx, func(tx *Tx) error {
		_, err := tx.UpdateAccountBalance(ctx, a.ID, decimal.NewFromInt(90))
		return err
	}))

	tx := s.Begin(ctx)
	defer tx.Rollback()
	rows, err := tx.UpdateAccountBalanceIfVersion(ctx, a.ID, 1, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	rows, err = tx.UpdateAccountBalanceIfVersion(ctx, a.ID, 2, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
}

func TestLockTimeout(t *testing.T) {
	ctx := context.Background()
	s := New(WithLockTimeout(20 * time.Millisecond))
	a := seed(t, s, "1")

	holder := s.Begin(ctx)
	_, err := holder.GetAccountForUpdate(ctx, a.ID)
	require.NoError(t, err)
	defer holder.Rollback()

	waiter := s.Begin(ctx)
	defer waiter.Rollback()
	_, err = waiter.GetAccountForUpdate(ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrLockTimeout)
}

func TestLockingRead_IsReentrant(t *testing.T) {
	ctx := context.Background()
	s := New(WithLockTimeout(20 * time.Millisecond))
	a := seed(t, s, "1")

	tx := s.Begin(ctx)
	defer tx.Rollback()
	_, err := tx.GetAccountForUpdate(ctx, a.ID)
	require.NoError(t, err)
	_, err = tx.GetAccountForUpdate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID}, tx.Locked())
}

func TestLockingRead_SerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "0")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTx(ctx, func(tx *Tx) error {
				acc, err := tx.GetAccountForUpdate(ctx, a.ID)
				if err != nil {
					return err
				}
				_, err = tx.UpdateAccountBalance(ctx, a.ID, acc.Balance.Add(decimal.NewFromInt(1)))
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	committed, _ := s.Account(a.ID)
	assert.Equal(t, "50", committed.Balance.String())
	assert.Equal(t, int64(51), committed.Version)
}

func TestNegativeBalanceRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "1")

	tx := s.Begin(ctx)
	defer tx.Rollback()
	_, err := tx.UpdateAccountBalance(ctx, a.ID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrNegativeBalance)
}

func TestGetAccount_NotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx := s.Begin(ctx)
	defer tx.Rollback()

	_, err := tx.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = tx.GetAccountForUpdate(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	rows, err := tx.UpdateAccountBalanceIfVersion(ctx, uuid.New(), 1, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestTxDone(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "1")
	tx := s.Begin(ctx)
	require.NoError(t, tx.Commit())

	_, err := tx.GetAccount(ctx, a.ID)
	assert.ErrorIs(t, err, ErrTxDone)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	tx.Rollback()
}
