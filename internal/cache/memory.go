package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func (m *Memory) Get(_ context.Context, date string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[date]
	return e, ok
}

func (m *Memory) Set(_ context.Context, date string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[date] = entry
	return nil
}

func (m *Memory) Delete(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, date)
	return nil
}

func (m *Memory) Sweep(_ context.Context, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for date, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, date)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
