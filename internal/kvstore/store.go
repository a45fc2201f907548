package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the name of the state document inside the state directory.
const FileName = "state.json"

const lockSuffix = ".lock"

// Store is a file-backed key/value store. It is safe for concurrent use
// within a process and across processes sharing the same file.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open returns a Store backed by dir/state.json, creating dir if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return New(filepath.Join(dir, FileName)), nil
}

// New returns a Store backed by the file at path. The file and its parent
// directory are not created until the first Set.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the path of the backing document.
func (s *Store) Path() string {
	return s.path
}

// Get decodes the value stored under key into out. It reports false when the
// key is absent, including when the document does not exist yet.
func (s *Store) Get(key string, out any) (bool, error) {
	var found bool
	err := s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		raw, ok := doc[key]
		if !ok {
			return nil
		}
		found = true
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		return nil
	})
	return found, err
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		doc[key] = raw
		return s.save(doc)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	return s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := doc[key]; !ok {
			return nil
		}
		delete(doc, key)
		return s.save(doc)
	})
}

func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	fl := newFileLock(s.path + lockSuffix)
	if err := fl.lock(); err != nil {
		return err
	}
	defer func() { _ = fl.unlock() }()

	return fn()
}

func (s *Store) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	doc := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return doc, nil
}

func (s *Store) save(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
