package preset

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Memory is an in-memory Store. It is safe for concurrent use and stores
// encoded presets, so callers never share state slices with it.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, name string) (Preset, error) {
	m.mu.RLock()
	v, ok := m.data[name]
	m.mu.RUnlock()
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return decode(v)
}

func (m *Memory) Put(_ context.Context, p Preset) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	data, err := encode(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[p.Name] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.data, name)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) iter.Seq2[Preset, error] {
	m.mu.RLock()
	names := make([]string, 0, len(m.data))
	values := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		names = append(names, k)
		values[k] = v
	}
	m.mu.RUnlock()
	slices.Sort(names)

	return func(yield func(Preset, error) bool) {
		for _, name := range names {
			if !yield(decode(values[name])) {
				return
			}
		}
	}
}

func (m *Memory) Close() error { return nil }
