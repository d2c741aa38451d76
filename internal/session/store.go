package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore keeps the session for the lifetime of the process.
type MemoryStore struct {
	mu  sync.RWMutex
	cur *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Current() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return Session{}, ErrNoSession
	}
	return *m.cur, nil
}

func (m *MemoryStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.cur = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = nil
	return nil
}

// FileStore persists the session as a JSON document readable only by the
// current user.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session file path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Current() (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if !s.Active() {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (f *FileStore) Save(s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Manager routes a login to persistent storage when the user asked to be
// remembered and to process memory otherwise. Saving into one clears the
// other; Clear empties both.
type Manager struct {
	persistent Store
	volatile   Store
}

// NewManager builds a Manager. persistent may be nil, in which case
// remembered sessions are kept in memory as well.
func NewManager(persistent Store) *Manager {
	return &Manager{persistent: persistent, volatile: NewMemoryStore()}
}

func (m *Manager) Current() (Session, error) {
	if m.persistent != nil {
		s, err := m.persistent.Current()
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNoSession) {
			return Session{}, err
		}
	}
	return m.volatile.Current()
}

func (m *Manager) Save(s Session) error {
	if s.Remember && m.persistent != nil {
		if err := m.volatile.Clear(); err != nil {
			return err
		}
		return m.persistent.Save(s)
	}
	if m.persistent != nil {
		if err := m.persistent.Clear(); err != nil {
			return err
		}
	}
	return m.volatile.Save(s)
}

func (m *Manager) Clear() error {
	var errs []error
	if m.persistent != nil {
		errs = append(errs, m.persistent.Clear())
	}
	errs = append(errs, m.volatile.Clear())
	return errors.Join(errs...)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*Manager)(nil)
)
