package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavelzar/paylink/internal/auth"
)

// CredentialStore implements auth.CredentialStore using PostgreSQL.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// SavePassword stores or replaces the account's password hash.
func (s *CredentialStore) SavePassword(ctx context.Context, accountID uuid.UUID, hash []byte) error {
	query := `
		INSERT INTO credentials (account_id, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET password_hash = EXCLUDED.password_hash
	`
	if _, err := runner(ctx, s.pool).Exec(ctx, query, accountID, hash); err != nil {
		return storageErr("save password", err)
	}
	return nil
}

// PasswordHash retrieves the account's password hash.
func (s *CredentialStore) PasswordHash(ctx context.Context, accountID uuid.UUID) ([]byte, error) {
	var hash []byte
	err := runner(ctx, s.pool).QueryRow(ctx,
		`SELECT password_hash FROM credentials WHERE account_id = $1`, accountID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, storageErr("load password hash", err)
	}
	return hash, nil
}

// SaveToken stores a hashed bearer token for the account.
func (s *CredentialStore) SaveToken(ctx context.Context, tokenHash string, accountID uuid.UUID) error {
	query := `INSERT INTO api_tokens (token_hash, account_id) VALUES ($1, $2)`
	if _, err := runner(ctx, s.pool).Exec(ctx, query, tokenHash, accountID); err != nil {
		return storageErr("save token", err)
	}
	return nil
}

// ResolveToken maps a hashed bearer token to the account it was issued for.
func (s *CredentialStore) ResolveToken(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	var accountID uuid.UUID
	err := runner(ctx, s.pool).QueryRow(ctx,
		`SELECT account_id FROM api_tokens WHERE token_hash = $1`, tokenHash).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, auth.ErrUnauthorized
		}
		return uuid.Nil, storageErr("resolve token", err)
	}
	return accountID, nil
}
