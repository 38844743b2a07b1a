package snapshot

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileStore keeps every user's snapshot in a single JSON file. The map is
// rewritten on each save; sessions are few and snapshots are small.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]json.RawMessage
}

// OpenFileStore loads (or creates) the backing file. A corrupt file is
// treated as empty: losing snapshots means a cold start, not an error.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &FileStore{path: path, entries: make(map[string]json.RawMessage)}
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
			s.entries = make(map[string]json.RawMessage)
		}
	}
	return s, nil
}

func (s *FileStore) Save(_ context.Context, userID int64, snap Snapshot) error {
	payload, err := json.Marshal(Scrub(snap))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strconv.FormatInt(userID, 10)] = payload
	return s.flush()
}

func (s *FileStore) Load(_ context.Context, userID int64) (Snapshot, bool, error) {
	s.mu.Lock()
	payload, ok := s.entries[strconv.FormatInt(userID, 10)]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		// Corrupt entry: resume from scratch.
		return Snapshot{}, false, nil
	}
	return Sanitize(snap), true, nil
}

func (s *FileStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strconv.FormatInt(userID, 10))
	return s.flush()
}

func (s *FileStore) flush() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
