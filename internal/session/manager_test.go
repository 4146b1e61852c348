package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studyhall/courses/internal/crypto"
	"studyhall/courses/internal/model"
)

type fakeAccounts struct {
	accounts map[string]model.Account
}

func (f *fakeAccounts) GetAccount(_ context.Context, email string) (model.Account, error) {
	account, ok := f.accounts[email]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return account, nil
}

func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	hash, err := crypto.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	accounts := &fakeAccounts{accounts: map[string]model.Account{
		"student1@example.local": {
			Email:        "student1@example.local",
			PasswordHash: hash,
			Role:         model.RoleStudent,
		},
	}}

	manager := NewManager(accounts, NewMemoryStore(), time.Hour)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }
	return manager, &now
}

func TestAuthenticateAndValidate(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	session, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate error: %v", err)
	}
	if session.Token == "" {
		t.Fatalf("expected a token")
	}
	if session.ExpiresAt.Sub(session.IssuedAt) != time.Hour {
		t.Fatalf("expected 1h lifetime, got %s", session.ExpiresAt.Sub(session.IssuedAt))
	}

	email, err := manager.Validate(ctx, session.Token)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if email != "student1@example.local" {
		t.Fatalf("expected account email, got %s", email)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Authenticate(ctx, "nobody@example.local", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := manager.Authenticate(ctx, "student1@example.local", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSecondLoginConflictsWhileSessionLive(t *testing.T) {
	manager, now := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse"); err != nil {
		t.Fatalf("authenticate error: %v", err)
	}
	if _, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// One second before expiry the session is still live.
	*now = now.Add(time.Hour - time.Second)
	if _, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict just before expiry, got %v", err)
	}

	// At the boundary the old session is expired and replaced silently.
	*now = now.Add(time.Second)
	if _, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse"); err != nil {
		t.Fatalf("expected login after expiry, got %v", err)
	}
}

func TestValidateExpiresExactlyAtBoundary(t *testing.T) {
	manager, now := newTestManager(t)
	ctx := context.Background()

	session, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate error: %v", err)
	}

	*now = now.Add(time.Hour - time.Nanosecond)
	if _, err := manager.Validate(ctx, session.Token); err != nil {
		t.Fatalf("expected token valid strictly before TTL, got %v", err)
	}

	*now = now.Add(time.Nanosecond)
	if _, err := manager.Validate(ctx, session.Token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at TTL boundary, got %v", err)
	}
}

func TestRevokeInvalidatesToken(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	session, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate error: %v", err)
	}
	if err := manager.Revoke(ctx, "student1@example.local"); err != nil {
		t.Fatalf("revoke error: %v", err)
	}
	if _, err := manager.Validate(ctx, session.Token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid after revoke, got %v", err)
	}

	// Revoke is idempotent and frees the account for a fresh login.
	if err := manager.Revoke(ctx, "student1@example.local"); err != nil {
		t.Fatalf("second revoke error: %v", err)
	}
	if _, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse"); err != nil {
		t.Fatalf("expected login after revoke, got %v", err)
	}
}

func TestConcurrentLoginsNeverBothSucceed(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Authenticate(ctx, "student1@example.local", "correct-horse")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one live session, got %d", successes)
	}
}

func TestGarbageTokenIsInvalid(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, err := manager.Validate(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
