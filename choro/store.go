package choro

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store is the persistence seam for camera state and style overrides.
// Implementations must tolerate missing keys; Get reports presence rather
// than erroring.
type Store interface {
	Get(key string) (string, bool)
	Put(key, value string) error
}

// MemoryStore is a map-backed Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

func (s *MemoryStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

// storePayload is the on-disk format. Older state files were a bare
// key/value object without the envelope, so decoding probes for the
// "entries" key before falling back.
type storePayload struct {
	Entries   map[string]string `json:"entries"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (p *storePayload) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if raw, ok := probe["entries"]; ok {
		type alias storePayload
		var out alias
		out.Entries = make(map[string]string)
		if err := json.Unmarshal(raw, &out.Entries); err != nil {
			return err
		}
		if rawTS, ok := probe["updated_at"]; ok {
			if err := json.Unmarshal(rawTS, &out.UpdatedAt); err != nil {
				return err
			}
		}
		*p = storePayload(out)
		return nil
	}

	// Legacy flat object: every value is a string.
	flat := make(map[string]string)
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	p.Entries = flat
	return nil
}

// FileStore persists entries as a JSON file, written through on every Put.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// OpenFileStore loads an existing state file or starts empty when the
// file is absent.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var payload storePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	if payload.Entries != nil {
		s.entries = payload.Entries
	}
	return s, nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok
}

func (s *FileStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok && existing == value {
		return nil
	}
	s.entries[key] = value
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	payload := storePayload{
		Entries:   s.entries,
		UpdatedAt: time.Now().UTC(),
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating state directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, out, 0644); err != nil {
		return fmt.Errorf("writing state file %s: %w", s.path, err)
	}
	return nil
}
