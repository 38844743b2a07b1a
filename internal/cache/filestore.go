package cache

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is a durable tier backed by a single JSON file, for
// deployments without postgres or redis. The whole map is rewritten on
// every mutation; fine for the handful of catalog-sized entries stored.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]fileEntry
}

type fileEntry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// OpenFileStore loads (or creates) the backing file. A corrupt file is
// treated as empty: losing durable cache entries is a cold start, not an
// error.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &FileStore{path: path, entries: make(map[string]fileEntry)}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			s.entries = make(map[string]fileEntry)
		}
	}
	return s, nil
}

// Get reads one entry; ErrNotFound for missing keys.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	return entry.Payload, entry.StoredAt, nil
}

// Set writes one entry and flushes the file.
func (s *FileStore) Set(_ context.Context, key string, payload []byte, storedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = fileEntry{Payload: payload, StoredAt: storedAt}
	return s.flushLocked()
}

// Delete removes one entry and flushes the file.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.flushLocked()
}

// Clear removes every entry and flushes the file.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]fileEntry)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
