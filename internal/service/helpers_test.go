package service

import (
	"context"
	"testing"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/ayo6706/ledger-core/internal/testutil/pgtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *repository.Store {
	t.Helper()
	return repository.NewStore(pgtest.Pool(t), 0)
}

func openTestAccount(t *testing.T, store *repository.Store, balance string) *models.Account {
	t.Helper()
	_, account, err := NewAccountService(store).OpenAccount(context.Background(), OpenAccountRequest{
		Email:          "owner-" + uuid.NewString()[:8] + "@example.com",
		FullName:       "Test Owner",
		OpeningBalance: dec(balance),
	})
	require.NoError(t, err)
	return account
}

func reload(t *testing.T, store *repository.Store, id uuid.UUID) *models.Account {
	t.Helper()
	a, err := store.Queries().GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}
