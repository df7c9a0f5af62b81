package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps all keys in one JSON object on disk, rewritten atomically
// on every mutation.
type FileStore struct {
	path   string
	mu     sync.Mutex
	items  map[string]string
	loaded bool
}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	return &FileStore{path: path}, nil
}

func (s *FileStore) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return "", false, persistenceErr("get", key, err)
	}

	v, ok := s.items[key]
	return v, ok, nil
}

func (s *FileStore) SetItem(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return persistenceErr("set", key, err)
	}

	previous, existed := s.items[key]
	s.items[key] = value
	if err := s.saveLocked(); err != nil {
		if existed {
			s.items[key] = previous
		} else {
			delete(s.items, key)
		}
		return persistenceErr("set", key, err)
	}
	return nil
}

func (s *FileStore) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return persistenceErr("remove", key, err)
	}

	if _, ok := s.items[key]; !ok {
		return nil
	}

	delete(s.items, key)
	if err := s.saveLocked(); err != nil {
		return persistenceErr("remove", key, err)
	}
	return nil
}

func (s *FileStore) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.items = map[string]string{}
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	items := map[string]string{}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
	}

	s.items = items
	s.loaded = true
	return nil
}

func (s *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, s.path)
}
