package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/pavelzar/paylink/internal/auth"
	"github.com/pavelzar/paylink/internal/memstore"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	gate := auth.NewGate(memstore.NewCredentials())
	ctx := context.Background()
	accountID := uuid.New()

	if err := gate.Register(ctx, accountID, "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := gate.Authenticate(ctx, accountID, "correct horse"); err != nil {
		t.Errorf("authenticate with right password: %v", err)
	}
	if err := gate.Authenticate(ctx, accountID, "wrong"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("wrong password: got %v, want ErrUnauthorized", err)
	}
	if err := gate.Authenticate(ctx, uuid.New(), "correct horse"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("unknown account: got %v, want ErrUnauthorized", err)
	}
}

func TestRegisterReplacesPassword(t *testing.T) {
	gate := auth.NewGate(memstore.NewCredentials())
	ctx := context.Background()
	accountID := uuid.New()

	if err := gate.Register(ctx, accountID, "first"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := gate.Register(ctx, accountID, "second"); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	if err := gate.Authenticate(ctx, accountID, "second"); err != nil {
		t.Errorf("authenticate with new password: %v", err)
	}
	if err := gate.Authenticate(ctx, accountID, "first"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("old password still accepted: got %v, want ErrUnauthorized", err)
	}
}

func TestIssueAndResolveToken(t *testing.T) {
	gate := auth.NewGate(memstore.NewCredentials())
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	aliceToken, err := gate.IssueToken(ctx, alice)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	bobToken, err := gate.IssueToken(ctx, bob)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if aliceToken == bobToken {
		t.Fatal("two issued tokens are identical")
	}

	got, err := gate.ResolvePrincipal(ctx, aliceToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != alice {
		t.Errorf("resolved %s, want %s", got, alice)
	}

	if _, err := gate.ResolvePrincipal(ctx, "not-a-token"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("bogus token: got %v, want ErrUnauthorized", err)
	}
	if _, err := gate.ResolvePrincipal(ctx, ""); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("empty token: got %v, want ErrUnauthorized", err)
	}
}

func TestTokensSurviveMultipleIssues(t *testing.T) {
	gate := auth.NewGate(memstore.NewCredentials())
	ctx := context.Background()
	accountID := uuid.New()

	first, err := gate.IssueToken(ctx, accountID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := gate.IssueToken(ctx, accountID)
	if err != nil {
		t.Fatalf("issue again: %v", err)
	}

	// Signing in again does not invalidate earlier sessions.
	for _, token := range []string{first, second} {
		got, err := gate.ResolvePrincipal(ctx, token)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got != accountID {
			t.Errorf("resolved %s, want %s", got, accountID)
		}
	}
}
