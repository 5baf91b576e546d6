package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavelzar/paylink/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountColumns = `id, username, display_name, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.DisplayName,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, storageErr("scan account", err)
	}
	return &account, nil
}

// Get retrieves an account by its unique identifier.
func (s *AccountStore) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(runner(ctx, s.pool).QueryRow(ctx, query, id))
}

// GetByUsername retrieves an account by its unique username.
func (s *AccountStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(runner(ctx, s.pool).QueryRow(ctx, query, username))
}

// Create persists a new account. The primary key and the unique index on
// username both map to domain.ErrAccountExists.
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, username, display_name, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := runner(ctx, s.pool).Exec(ctx, query,
		account.ID,
		account.Username,
		account.DisplayName,
		account.Balance,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAccountExists
		}
		return storageErr("create account", err)
	}
	return nil
}

// Lock acquires a pessimistic row lock on the account for the duration of the
// transaction, using SELECT ... FOR UPDATE. Must be called within a
// transaction context; callers lock multiple accounts in canonical id order.
func (s *AccountStore) Lock(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(runner(ctx, s.pool).QueryRow(ctx, query, id))
}

// ApplyDelta atomically adds delta to the balance and returns the new value.
// The guarded UPDATE refuses the mutation when the result would go negative,
// leaving the balance unchanged.
func (s *AccountStore) ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2,
		    updated_at = now()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance
	`
	q := runner(ctx, s.pool)

	var balance int64
	err := q.QueryRow(ctx, query, id, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, storageErr("apply delta", err)
	}

	// Zero rows: either the account is missing or the delta would overdraw it.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, storageErr("apply delta", err)
	}
	if !exists {
		return 0, domain.ErrAccountNotFound
	}
	return 0, domain.ErrInsufficientFunds
}

// List returns accounts whose username or display name contains filter
// (case-insensitive, empty filter matches all), ordered by username.
func (s *AccountStore) List(ctx context.Context, filter string) ([]*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE $1 = '' OR username ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%'
		ORDER BY username
	`
	rows, err := runner(ctx, s.pool).Query(ctx, query, filter)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list accounts", err)
	}
	return out, nil
}
