package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
)

var errNotFound = apperrors.ErrNotFound

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

var _ LocalStore = (*MemoryLocal)(nil)

// MemoryLocal is an in-process LocalStore.
type MemoryLocal struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{records: make(map[string][]byte)}
}

func (m *MemoryLocal) Load(key string, v any) error {
	m.mu.RLock()
	data, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return errNotFound
	}
	return json.Unmarshal(data, v)
}

func (m *MemoryLocal) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[MemoryLocal Save] encode %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = data
	return nil
}

func (m *MemoryLocal) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

var _ LocalStore = (*FileLocal)(nil)

// FileLocal stores each key as <dir>/<key>.json.
type FileLocal struct {
	dir string
	mu  sync.Mutex
}

func NewFileLocal(dir string) *FileLocal {
	return &FileLocal{dir: dir}
}

func (f *FileLocal) Load(key string, v any) error {
	path, err := f.keyPath(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	data, err := os.ReadFile(path)
	f.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return errNotFound
		}
		return fmt.Errorf("[FileLocal Load] read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrapf(err, "[FileLocal Load] decode %s", key)
	}
	return nil
}

func (f *FileLocal) Save(key string, v any) error {
	path, err := f.keyPath(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[FileLocal Save] encode %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeFileAtomic(path, data)
}

func (f *FileLocal) Remove(key string) error {
	path, err := f.keyPath(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[FileLocal Remove] %s: %w", key, err)
	}
	return nil
}

func (f *FileLocal) keyPath(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("[FileLocal] invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}
