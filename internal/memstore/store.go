// Package memstore is an in-process ledger store. Rows carry exclusive locks that
// are held until the owning transaction ends, writes are buffered per transaction
// and become visible to other transactions only on commit.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultLockTimeout = 5 * time.Second

var (
	ErrTxDone          = errors.New("memstore: transaction already finished")
	ErrNegativeBalance = errors.New("memstore: balance must not be negative")
	ErrForeignKey      = errors.New("memstore: transfer references unknown account")
	ErrDuplicateID     = errors.New("memstore: duplicate id")
)

type row struct {
	lock    chan struct{}
	account models.Account
}

type Store struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]*row
	owners      map[uuid.UUID]uuid.UUID
	transfers   []models.Transfer
	transferIDs map[uuid.UUID]struct{}
	lockTimeout time.Duration
	now         func() time.Time
}

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		accounts:    make(map[uuid.UUID]*row),
		owners:      make(map[uuid.UUID]uuid.UUID),
		transferIDs: make(map[uuid.UUID]struct{}),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAccount commits a new account directly. Version defaults to 1.
func (s *Store) AddAccount(a models.Account) (models.Account, error) {
	if a.Balance.IsNegative() {
		return models.Account{}, ErrNegativeBalance
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.OwnerID == uuid.Nil {
		a.OwnerID = uuid.New()
	}
	if _, ok := s.accounts[a.ID]; ok {
		return models.Account{}, ErrDuplicateID
	}
	if _, ok := s.owners[a.OwnerID]; ok {
		return models.Account{}, models.ErrDuplicateOwner
	}
	if a.Version == 0 {
		a.Version = 1
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	if a.OpeningBalance.IsZero() {
		a.OpeningBalance = a.Balance
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now

	s.accounts[a.ID] = &row{lock: make(chan struct{}, 1), account: a}
	s.owners[a.OwnerID] = a.ID
	return a, nil
}

// Account returns the committed state of an account.
func (s *Store) Account(id uuid.UUID) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.accounts[id]
	if !ok {
		return models.Account{}, false
	}
	return r.account, true
}

// Transfers returns every committed transfer in commit order.
func (s *Store) Transfers() []models.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transfer, len(s.transfers))
	copy(out, s.transfers)
	return out
}

// TotalBalance sums the committed balances of all accounts.
func (s *Store) TotalBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, r := range s.accounts {
		total = total.Add(r.account.Balance)
	}
	return total
}

func (s *Store) Begin(ctx context.Context) *Tx {
	return &Tx{
		store:  s,
		held:   make(map[uuid.UUID]*row),
		writes: make(map[uuid.UUID]models.Account),
	}
}

// RunInTx executes fn within a transaction, committing when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx := s.Begin(ctx)
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) lookup(id uuid.UUID) (*row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.accounts[id]
	return r, ok
}

// Tx is a single unit of work. It is not safe for concurrent use.
type Tx struct {
	store     *Store
	held      map[uuid.UUID]*row
	writes    map[uuid.UUID]models.Account
	transfers []models.Transfer
	done      bool
}

func (tx *Tx) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := tx.store.lookup(id)
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	a := tx.view(id, r)
	return &a, nil
}

func (tx *Tx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	r, ok := tx.store.lookup(id)
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	if err := tx.acquire(ctx, id, r); err != nil {
		return nil, err
	}
	a := tx.view(id, r)
	return &a, nil
}

func (tx *Tx) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (int64, error) {
	return tx.update(ctx, id, nil, balance)
}

func (tx *Tx) UpdateAccountBalanceIfVersion(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (int64, error) {
	return tx.update(ctx, id, &expectedVersion, balance)
}

// update takes the row lock the way a SQL UPDATE does, then re-checks the version
// against the latest state.
func (tx *Tx) update(ctx context.Context, id uuid.UUID, expectedVersion *int64, balance decimal.Decimal) (int64, error) {
	if tx.done {
		return 0, ErrTxDone
	}
	r, ok := tx.store.lookup(id)
	if !ok {
		return 0, nil
	}
	if err := tx.acquire(ctx, id, r); err != nil {
		return 0, err
	}
	current := tx.view(id, r)
	if expectedVersion != nil && current.Version != *expectedVersion {
		return 0, nil
	}
	if balance.IsNegative() {
		return 0, ErrNegativeBalance
	}
	current.Balance = balance
	current.Version++
	current.UpdatedAt = tx.store.now()
	tx.writes[id] = current
	return 1, nil
}

func (tx *Tx) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	if tx.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, id := range []uuid.UUID{t.SenderAccountID, t.ReceiverAccountID} {
		if _, ok := tx.store.lookup(id); !ok {
			return fmt.Errorf("%w: %s", ErrForeignKey, id)
		}
	}
	tx.store.mu.Lock()
	_, dup := tx.store.transferIDs[t.ID]
	tx.store.mu.Unlock()
	if dup {
		return ErrDuplicateID
	}
	for _, pending := range tx.transfers {
		if pending.ID == t.ID {
			return ErrDuplicateID
		}
	}
	t.CreatedAt = tx.store.now()
	tx.transfers = append(tx.transfers, *t)
	return nil
}

// Commit publishes buffered writes atomically and releases every held lock.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	s := tx.store
	s.mu.Lock()
	for _, t := range tx.transfers {
		if _, dup := s.transferIDs[t.ID]; dup {
			s.mu.Unlock()
			tx.release()
			return ErrDuplicateID
		}
	}
	for id, a := range tx.writes {
		s.accounts[id].account = a
	}
	for _, t := range tx.transfers {
		s.transferIDs[t.ID] = struct{}{}
		s.transfers = append(s.transfers, t)
	}
	s.mu.Unlock()
	tx.release()
	return nil
}

// Rollback discards buffered writes. Calling it after Commit is a no-op.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.release()
}

// Locked returns the ids of rows this transaction currently holds, sorted.
func (tx *Tx) Locked() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(tx.held))
	for id := range tx.held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (tx *Tx) release() {
	for id, r := range tx.held {
		<-r.lock
		delete(tx.held, id)
	}
	tx.writes = nil
	tx.transfers = nil
	tx.done = true
}

func (tx *Tx) acquire(ctx context.Context, id uuid.UUID, r *row) error {
	if _, ok := tx.held[id]; ok {
		return nil
	}
	select {
	case r.lock <- struct{}{}:
		tx.held[id] = r
		return nil
	default:
	}

	timer := time.NewTimer(tx.store.lockTimeout)
	defer timer.Stop()
	select {
	case r.lock <- struct{}{}:
		tx.held[id] = r
		return nil
	case <-timer.C:
		return fmt.Errorf("account %s: %w", id, models.ErrLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// view returns the row as this transaction sees it: its own pending write if any,
// otherwise the last committed state.
func (tx *Tx) view(id uuid.UUID, r *row) models.Account {
	if a, ok := tx.writes[id]; ok {
		return a
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return r.account
}
