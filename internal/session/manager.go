package session

import (
	"context"
	"errors"
	"time"

	"studyhall/courses/internal/crypto"
	"studyhall/courses/internal/model"
)

type AccountSource interface {
	GetAccount(ctx context.Context, email string) (model.Account, error)
}

// Manager issues, validates and revokes session tokens, enforcing one
// active session per account. The clock is a field so tests can cross the
// TTL boundary without sleeping.
type Manager struct {
	accounts AccountSource
	store    Store
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(accounts AccountSource, store Store, ttl time.Duration) *Manager {
	return &Manager{
		accounts: accounts,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Authenticate verifies the credentials, then performs the atomic
// check-and-set against the store: an unexpired session on the account
// fails with ErrConflict, an expired one is replaced silently.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (model.Session, error) {
	account, err := m.accounts.GetAccount(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, ErrInvalidCredentials
		}
		return model.Session{}, err
	}
	if err := crypto.CheckPassword(account.PasswordHash, password); err != nil {
		return model.Session{}, ErrInvalidCredentials
	}

	token, err := crypto.NewSessionToken()
	if err != nil {
		return model.Session{}, err
	}

	issuedAt := m.now().UTC()
	record := Record{
		AccountEmail: account.Email,
		TokenHash:    crypto.HashToken(token),
		IssuedAt:     issuedAt,
	}
	if err := m.store.Acquire(ctx, record, m.ttl); err != nil {
		return model.Session{}, err
	}

	return model.Session{
		AccountEmail: account.Email,
		Token:        token,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(m.ttl),
	}, nil
}

// Validate resolves a token to its account. A token is valid iff it is the
// account's current session and now - issuedAt < ttl.
func (m *Manager) Validate(ctx context.Context, token string) (string, error) {
	tokenHash := crypto.HashToken(token)
	record, err := m.store.Lookup(ctx, tokenHash)
	if err != nil {
		return "", err
	}
	if m.now().UTC().Sub(record.IssuedAt) >= m.ttl {
		return "", ErrExpired
	}

	current, err := m.store.Current(ctx, record.AccountEmail)
	if err != nil {
		return "", err
	}
	if current.TokenHash != tokenHash {
		return "", ErrInvalid
	}
	return record.AccountEmail, nil
}

// Revoke clears the account's active session. Idempotent.
func (m *Manager) Revoke(ctx context.Context, email string) error {
	return m.store.Revoke(ctx, email)
}
