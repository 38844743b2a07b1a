package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]struct {
		payload  []byte
		storedAt time.Time
	}
	getErr error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]struct {
		payload  []byte
		storedAt time.Time
	})}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, time.Time{}, s.getErr
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	return e.payload, e.storedAt, nil
}

func (s *memStore) Set(_ context.Context, key string, payload []byte, storedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = struct {
		payload  []byte
		storedAt time.Time
	}{payload, storedAt}
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]struct {
		payload  []byte
		storedAt time.Time
	})
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestKeyJoinsWithDelimiter(t *testing.T) {
	require.Equal(t, "alice:accounts", Key("alice", "accounts"))
	require.Equal(t, "rate:EUR:USD", Key("rate", "EUR", "USD"))
}

func TestExpiryPurgesBothTiers(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := newMemStore()
	c := New[string]("test", time.Minute, WithDurable[string](store), WithClock[string](clock))
	ctx := context.Background()

	c.Set(ctx, "k", "v")
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "v", got)
	require.Equal(t, 1, store.len())

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
	require.Equal(t, 0, store.len(), "expired entry must leave the durable tier too")
}

func TestDurableTierSurvivesColdStart(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	warm := New[[]int]("test", time.Hour, WithDurable[[]int](store))
	warm.Set(ctx, "k", []int{1, 2, 3})

	// A fresh instance has an empty memory tier but shares the store.
	cold := New[[]int]("test", time.Hour, WithDurable[[]int](store))
	got, ok := cold.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestCorruptDurablePayloadIsDiscarded(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("{not json"), time.Now()))

	c := New[map[string]int]("test", time.Hour, WithDurable[map[string]int](store))
	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
	require.Equal(t, 0, store.len(), "corrupt payload must be purged")
}

func TestDurableFailureIsNonFatal(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("disk on fire")
	c := New[string]("test", time.Hour, WithDurable[string](store))
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	// Writes still land in the memory tier.
	c.Set(ctx, "k", "v")
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestGetOrFillCoalescesWithinTTL(t *testing.T) {
	c := New[string]("test", time.Hour)
	ctx := context.Background()
	calls := 0
	fill := func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	}

	for i := 0; i < 5; i++ {
		got, err := c.GetOrFill(ctx, "k", fill)
		require.NoError(t, err)
		require.Equal(t, "fresh", got)
	}
	require.Equal(t, 1, calls)
}

func TestGetOrFillErrorIsNotCached(t *testing.T) {
	c := New[string]("test", time.Hour)
	ctx := context.Background()

	boom := errors.New("upstream down")
	_, err := c.GetOrFill(ctx, "k", func(context.Context) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)

	got, err := c.GetOrFill(ctx, "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}

func TestDeleteAndClear(t *testing.T) {
	store := newMemStore()
	c := New[string]("test", time.Hour, WithDurable[string](store))
	ctx := context.Background()

	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")
	c.Delete(ctx, "a")
	_, ok := c.Get(ctx, "a")
	require.False(t, ok)
	_, ok = c.Get(ctx, "b")
	require.True(t, ok)

	c.Clear(ctx)
	_, ok = c.Get(ctx, "b")
	require.False(t, ok)
	require.Equal(t, 0, store.len())
}
