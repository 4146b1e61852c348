package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Enforcement of the
// single-session rule is per process and resets on restart.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Record
	tokens   map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Record),
		tokens:   make(map[string]Record),
	}
}

func (s *MemoryStore) Acquire(_ context.Context, record Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.accounts[record.AccountEmail]; ok {
		if record.IssuedAt.Sub(current.IssuedAt) < ttl {
			return ErrConflict
		}
		delete(s.tokens, current.TokenHash)
	}
	s.accounts[record.AccountEmail] = record
	s.tokens[record.TokenHash] = record
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[tokenHash]
	if !ok {
		return Record{}, ErrInvalid
	}
	return record, nil
}

func (s *MemoryStore) Current(_ context.Context, accountEmail string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.accounts[accountEmail]
	if !ok {
		return Record{}, ErrInvalid
	}
	return record, nil
}

func (s *MemoryStore) Revoke(_ context.Context, accountEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.accounts[accountEmail]; ok {
		delete(s.tokens, current.TokenHash)
		delete(s.accounts, accountEmail)
	}
	return nil
}
