// Package auth implements the gate that turns a bearer credential into a
// resolved account identity. The ledger engine trusts whatever identity the
// gate supplies and performs no credential checking itself; token resolution
// always happens outside any ledger lock.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned when a credential cannot be resolved to an
// account: unknown token, wrong password, or missing registration.
var ErrUnauthorized = errors.New("unauthorized")

// CredentialStore persists password hashes and issued token hashes. Tokens
// are stored hashed; the plaintext exists only in the client's hands.
type CredentialStore interface {
	SavePassword(ctx context.Context, accountID uuid.UUID, hash []byte) error
	PasswordHash(ctx context.Context, accountID uuid.UUID) ([]byte, error)
	SaveToken(ctx context.Context, tokenHash string, accountID uuid.UUID) error
	ResolveToken(ctx context.Context, tokenHash string) (uuid.UUID, error)
}

// Gate issues bearer tokens at signup/signin and resolves them on each
// request.
type Gate struct {
	creds CredentialStore
}

// NewGate creates a Gate over the given credential store.
func NewGate(creds CredentialStore) *Gate {
	return &Gate{creds: creds}
}

// Register stores the bcrypt hash of a new account's password.
func (g *Gate) Register(ctx context.Context, accountID uuid.UUID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return g.creds.SavePassword(ctx, accountID, hash)
}

// Authenticate verifies the account's password.
func (g *Gate) Authenticate(ctx context.Context, accountID uuid.UUID, password string) error {
	hash, err := g.creds.PasswordHash(ctx, accountID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return ErrUnauthorized
	}
	return nil
}

// IssueToken mints an opaque bearer token for the account and stores its
// SHA-256 hash.
func (g *Gate) IssueToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)
	if err := g.creds.SaveToken(ctx, hashToken(token), accountID); err != nil {
		return "", err
	}
	return token, nil
}

// ResolvePrincipal maps a bearer token to the account it was issued for.
func (g *Gate) ResolvePrincipal(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthorized
	}
	return g.creds.ResolveToken(ctx, hashToken(token))
}

// hashToken returns the hex SHA-256 of a token. Plaintext tokens are never
// persisted or compared directly.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
