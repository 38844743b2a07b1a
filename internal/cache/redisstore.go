package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps cache entries in redis. The stored_at timestamp travels
// inside the value so TTL judgement stays with the Cache, identical to the
// other backends; a generous redis-side expiry only bounds garbage.
type RedisStore struct {
	client *goredis.Client
	prefix string
	maxAge time.Duration
}

type redisEntry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// NewRedisStore builds a store; prefix namespaces keys, maxAge bounds how
// long redis keeps entries regardless of cache TTL (0 means keep forever).
func NewRedisStore(client *goredis.Client, prefix string, maxAge time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, maxAge: maxAge}
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + Delimiter + key
}

// Get reads one entry; ErrNotFound for missing keys.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, time.Time{}, err
	}
	return entry.Payload, entry.StoredAt, nil
}

// Set writes one entry.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, storedAt time.Time) error {
	data, err := json.Marshal(redisEntry{Payload: payload, StoredAt: storedAt})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, s.maxAge).Err()
}

// Delete removes one entry.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Clear removes every entry under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	pattern := s.key("*")
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
