package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelzar/paylink/internal/auth"
)

// Credentials implements auth.CredentialStore over process memory.
type Credentials struct {
	mu        sync.RWMutex
	passwords map[uuid.UUID][]byte
	tokens    map[string]uuid.UUID
}

// NewCredentials creates an empty Credentials store.
func NewCredentials() *Credentials {
	return &Credentials{
		passwords: make(map[uuid.UUID][]byte),
		tokens:    make(map[string]uuid.UUID),
	}
}

// SavePassword stores or replaces the account's password hash.
func (c *Credentials) SavePassword(_ context.Context, accountID uuid.UUID, hash []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(hash))
	copy(cp, hash)
	c.passwords[accountID] = cp
	return nil
}

// PasswordHash retrieves the account's password hash.
func (c *Credentials) PasswordHash(_ context.Context, accountID uuid.UUID) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.passwords[accountID]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	cp := make([]byte, len(hash))
	copy(cp, hash)
	return cp, nil
}

// SaveToken stores a hashed bearer token for the account.
func (c *Credentials) SaveToken(_ context.Context, tokenHash string, accountID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[tokenHash] = accountID
	return nil
}

// ResolveToken maps a hashed bearer token to the account it was issued for.
func (c *Credentials) ResolveToken(_ context.Context, tokenHash string) (uuid.UUID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	accountID, ok := c.tokens[tokenHash]
	if !ok {
		return uuid.Nil, auth.ErrUnauthorized
	}
	return accountID, nil
}
