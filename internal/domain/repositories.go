package domain

import (
	"context"

	"github.com/google/uuid"
)

// AccountStore owns the durable mapping from account identity to balance.
// Pure storage with atomic read-modify-write primitives and no business logic.
type AccountStore interface {
	// Get retrieves an account by id. Returns ErrAccountNotFound if it
	// doesn't exist. Reads observe only fully committed balances.
	Get(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetByUsername retrieves an account by its unique username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// Create persists a new account. Returns ErrAccountExists if the id or
	// username is already taken.
	Create(ctx context.Context, account *Account) error

	// Lock acquires exclusive access to the account until the surrounding
	// transaction ends and returns its current state. Must be called within
	// a TxManager transaction; callers acquire multiple locks in canonical
	// id order to avoid deadlock.
	Lock(ctx context.Context, id uuid.UUID) (*Account, error)

	// ApplyDelta atomically adds delta (may be negative) to the balance and
	// returns the new value. The mutation is refused with
	// ErrInsufficientFunds, leaving the balance unchanged, if the result
	// would be negative.
	ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (int64, error)

	// List returns account snapshots whose username or display name contains
	// filter (empty filter matches all), ordered by username.
	List(ctx context.Context, filter string) ([]*Account, error)
}

// TransactionLog is the append-only record of transfer outcomes, keyed by
// idempotency key.
type TransactionLog interface {
	// Find retrieves the record for an idempotency key, or (nil, nil) when no
	// attempt with that key has concluded.
	Find(ctx context.Context, idempotencyKey string) (*TransactionRecord, error)

	// Append durably persists a record. Returns ErrDuplicateKey if a record
	// with the same idempotency key already exists.
	Append(ctx context.Context, record *TransactionRecord) error

	// ListByAccount returns records where the account is sender or recipient,
	// newest first, at most limit entries (limit <= 0 means no cap).
	ListByAccount(ctx context.Context, id uuid.UUID, limit int) ([]*TransactionRecord, error)
}

// TxManager executes a function within a storage transaction: every mutation
// made through the stores inside fn becomes visible together on commit, or not
// at all. Locks taken via AccountStore.Lock are held until the transaction ends.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher publishes domain events to external systems (e.g. RabbitMQ).
type EventPublisher interface {
	PublishTransferCompleted(ctx context.Context, record *TransactionRecord) error
}
