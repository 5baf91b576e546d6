// Package memstore provides an in-memory implementation of the ledger storage
// interfaces. It backs unit tests and local runs without PostgreSQL.
//
// Concurrency model: every account carries its own mutex, forming a lock
// table keyed by account id. AccountStore.Lock acquires the per-account mutex
// and holds it until the surrounding transaction ends; callers acquire locks
// in canonical id order. Mutations inside a transaction are staged and applied
// at commit while the locks are still held, so readers never observe a
// half-applied debit/credit pair.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelzar/paylink/internal/domain"
)

// Store implements domain.AccountStore, domain.TransactionLog and
// domain.TxManager over process memory.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*entry
	byName   map[string]uuid.UUID
	records  map[string]*domain.TransactionRecord
	appended []*domain.TransactionRecord
}

type entry struct {
	mu   sync.Mutex
	acct domain.Account
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*entry),
		byName:   make(map[string]uuid.UUID),
		records:  make(map[string]*domain.TransactionRecord),
	}
}

// txKey is the key type for storing the transaction in context.
type txKey struct{}

// memTx tracks the locks held and the writes staged by one transaction.
type memTx struct {
	store    *Store
	locked   map[uuid.UUID]*entry
	order    []*entry
	balances map[uuid.UUID]int64
	staged   []*domain.TransactionRecord
}

func txFrom(ctx context.Context) *memTx {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		return tx
	}
	return nil
}

// WithTransaction runs fn with a transaction in context. Staged writes become
// visible together at commit, or not at all; account locks acquired through
// Lock are released when the transaction ends.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return errors.New("nested transactions are not supported")
	}
	tx := &memTx{
		store:    s,
		locked:   make(map[uuid.UUID]*entry),
		balances: make(map[uuid.UUID]int64),
	}
	defer tx.release()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.commit()
}

// commit publishes staged records and balances while the account locks are
// still held, so no reader can observe the balances without the record or
// vice versa.
func (tx *memTx) commit() error {
	s := tx.store

	s.mu.Lock()
	for _, rec := range tx.staged {
		if _, exists := s.records[rec.IdempotencyKey]; exists {
			s.mu.Unlock()
			return domain.ErrDuplicateKey
		}
	}
	for _, rec := range tx.staged {
		cp := *rec
		s.records[rec.IdempotencyKey] = &cp
		s.appended = append(s.appended, &cp)
	}
	s.mu.Unlock()

	now := time.Now().UTC()
	for id, balance := range tx.balances {
		e := tx.locked[id]
		e.acct.Balance = balance
		e.acct.UpdatedAt = now
	}
	return nil
}

// release unlocks held accounts in reverse acquisition order.
func (tx *memTx) release() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.order[i].mu.Unlock()
	}
	tx.order = nil
	tx.locked = nil
}

// view returns the transaction's current value for a locked account,
// reflecting any staged delta.
func (tx *memTx) view(id uuid.UUID, e *entry) domain.Account {
	acct := e.acct
	if balance, ok := tx.balances[id]; ok {
		acct.Balance = balance
	}
	return acct
}

// Get retrieves a committed snapshot of the account. Inside a transaction
// that holds the account's lock, it returns the transaction's own view.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if tx := txFrom(ctx); tx != nil {
		if e, ok := tx.locked[id]; ok {
			acct := tx.view(id, e)
			return &acct, nil
		}
	}

	s.mu.RLock()
	e, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	e.mu.Lock()
	acct := e.acct
	e.mu.Unlock()
	return &acct, nil
}

// GetByUsername retrieves an account by its unique username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.RLock()
	id, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.Get(ctx, id)
}

// Create persists a new account with a unique id and username.
func (s *Store) Create(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return domain.ErrAccountExists
	}
	if _, exists := s.byName[account.Username]; exists {
		return domain.ErrAccountExists
	}
	s.accounts[account.ID] = &entry{acct: *account}
	s.byName[account.Username] = account.ID
	return nil
}

// Lock acquires the account's mutex until the transaction ends and returns
// the transaction's view of the account. Callers lock multiple accounts in
// canonical id order.
func (s *Store) Lock(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return nil, errors.New("memstore: Lock requires a transaction")
	}
	if e, ok := tx.locked[id]; ok {
		acct := tx.view(id, e)
		return &acct, nil
	}

	s.mu.RLock()
	e, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	e.mu.Lock()
	tx.locked[id] = e
	tx.order = append(tx.order, e)
	acct := e.acct
	return &acct, nil
}

// ApplyDelta atomically adds delta to the balance, refusing the mutation if
// the result would be negative. Inside a transaction the new balance is
// staged until commit; standalone calls apply immediately under the
// account's own lock, so concurrent deltas on one account never interleave.
func (s *Store) ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	if tx := txFrom(ctx); tx != nil {
		e, ok := tx.locked[id]
		if !ok {
			if _, err := s.Lock(ctx, id); err != nil {
				return 0, err
			}
			e = tx.locked[id]
		}
		balance := tx.view(id, e).Balance + delta
		if balance < 0 {
			return 0, domain.ErrInsufficientFunds
		}
		tx.balances[id] = balance
		return balance, nil
	}

	s.mu.RLock()
	e, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return 0, domain.ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	balance := e.acct.Balance + delta
	if balance < 0 {
		return 0, domain.ErrInsufficientFunds
	}
	e.acct.Balance = balance
	e.acct.UpdatedAt = time.Now().UTC()
	return balance, nil
}

// List returns snapshots of accounts whose username or display name contains
// filter, ordered by username.
func (s *Store) List(_ context.Context, filter string) ([]*domain.Account, error) {
	filter = strings.ToLower(filter)

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*domain.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		acct := e.acct
		e.mu.Unlock()
		if filter != "" &&
			!strings.Contains(strings.ToLower(acct.Username), filter) &&
			!strings.Contains(strings.ToLower(acct.DisplayName), filter) {
			continue
		}
		cp := acct
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Find retrieves the committed record for an idempotency key, or (nil, nil).
func (s *Store) Find(_ context.Context, idempotencyKey string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[idempotencyKey]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Append persists a record. Inside a transaction the record is staged and the
// uniqueness of the idempotency key is enforced at commit; standalone appends
// enforce it immediately.
func (s *Store) Append(ctx context.Context, record *domain.TransactionRecord) error {
	if tx := txFrom(ctx); tx != nil {
		s.mu.RLock()
		_, exists := s.records[record.IdempotencyKey]
		s.mu.RUnlock()
		if exists {
			return domain.ErrDuplicateKey
		}
		for _, staged := range tx.staged {
			if staged.IdempotencyKey == record.IdempotencyKey {
				return domain.ErrDuplicateKey
			}
		}
		cp := *record
		tx.staged = append(tx.staged, &cp)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.IdempotencyKey]; exists {
		return domain.ErrDuplicateKey
	}
	cp := *record
	s.records[record.IdempotencyKey] = &cp
	s.appended = append(s.appended, &cp)
	return nil
}

// ListByAccount returns records where the account is sender or recipient,
// newest first, at most limit entries (limit <= 0 means no cap).
func (s *Store) ListByAccount(_ context.Context, id uuid.UUID, limit int) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TransactionRecord
	for i := len(s.appended) - 1; i >= 0; i-- {
		rec := s.appended[i]
		if rec.FromAccount != id && rec.ToAccount != id {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
