package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("session conflict")
	ErrExpired            = errors.New("session expired")
	ErrInvalid            = errors.New("session invalid")
)

// Record is what a store keeps per account: at most one, the active
// session. Expiry is computed from IssuedAt, never refreshed by activity.
type Record struct {
	AccountEmail string
	TokenHash    string
	IssuedAt     time.Time
}

// Store holds the single active session per account. Acquire is a
// check-and-set: it must atomically fail with ErrConflict while an
// unexpired session exists, and otherwise install the new record,
// silently replacing an expired one. The record's IssuedAt is the
// acquisition time used for the expiry check.
type Store interface {
	Acquire(ctx context.Context, record Record, ttl time.Duration) error
	Lookup(ctx context.Context, tokenHash string) (Record, error)
	Current(ctx context.Context, accountEmail string) (Record, error)
	Revoke(ctx context.Context, accountEmail string) error
}
