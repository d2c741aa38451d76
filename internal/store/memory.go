package store

import (
	"context"
	"strconv"
	"sync"

	"brdconsole.org/internal/ids"
)

type collection struct {
	seq   ids.Sequence
	order []string
	rows  map[string]Record
}

// Memory keeps every collection in process memory. Records come back in
// insertion order.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*collection)}
}

func (m *Memory) coll(name string) *collection {
	c, ok := m.collections[name]
	if !ok {
		c = &collection{rows: make(map[string]Record)}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) NextID(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll(name).seq.Next(), nil
}

func (m *Memory) List(_ context.Context, name string, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return []Record{}, nil
	}
	out := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		rec := c.rows[id]
		if !filter.Matches(rec) {
			continue
		}
		cp, err := Clone(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, name, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := c.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return Clone(rec)
}

func (m *Memory) Insert(_ context.Context, name, id string, rec Record) error {
	cp, err := Clone(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(name)
	if _, ok := c.rows[id]; ok {
		return ErrConflict
	}
	c.rows[id] = cp
	c.order = append(c.order, id)
	if n, ok := numericID(id); ok {
		c.seq.Observe(n)
	}
	return nil
}

func (m *Memory) Replace(_ context.Context, name, id string, rec Record) error {
	cp, err := Clone(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.rows[id]; !ok {
		return ErrNotFound
	}
	c.rows[id] = cp
	return nil
}

func (m *Memory) Delete(_ context.Context, name, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.rows[id]; !ok {
		return ErrNotFound
	}
	delete(c.rows, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func numericID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
