package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis so the single-session rule survives
// restarts and is shared across replicas. The account key carries the TTL,
// which makes SET NX the atomic check-and-set: while the key lives, a
// second login cannot acquire. Token keys are kept one extra TTL past
// expiry so a stale token still reports as expired rather than unknown.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisRecord struct {
	AccountEmail string    `json:"account_email"`
	TokenHash    string    `json:"token_hash"`
	IssuedAt     time.Time `json:"issued_at"`
}

func accountKey(email string) string   { return "session:account:" + email }
func tokenKey(tokenHash string) string { return "session:token:" + tokenHash }

func (s *RedisStore) Acquire(ctx context.Context, record Record, ttl time.Duration) error {
	payload, err := json.Marshal(redisRecord{
		AccountEmail: record.AccountEmail,
		TokenHash:    record.TokenHash,
		IssuedAt:     record.IssuedAt,
	})
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, accountKey(record.AccountEmail), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return s.client.Set(ctx, tokenKey(record.TokenHash), payload, 2*ttl).Err()
}

func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (Record, error) {
	return s.get(ctx, tokenKey(tokenHash))
}

func (s *RedisStore) Current(ctx context.Context, accountEmail string) (Record, error) {
	return s.get(ctx, accountKey(accountEmail))
}

func (s *RedisStore) Revoke(ctx context.Context, accountEmail string) error {
	current, err := s.get(ctx, accountKey(accountEmail))
	if err == nil {
		if err := s.client.Del(ctx, tokenKey(current.TokenHash)).Err(); err != nil {
			return err
		}
	} else if err != ErrInvalid {
		return err
	}
	return s.client.Del(ctx, accountKey(accountEmail)).Err()
}

func (s *RedisStore) get(ctx context.Context, key string) (Record, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Record{}, ErrInvalid
	}
	if err != nil {
		return Record{}, err
	}
	var record redisRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return Record{}, err
	}
	return Record{
		AccountEmail: record.AccountEmail,
		TokenHash:    record.TokenHash,
		IssuedAt:     record.IssuedAt,
	}, nil
}
