package store

import (
	"context"
	"sort"
	"sync"

	"github.com/lsewell/trellis/internal/thought"
)

// Memory is a map-backed Store used as the test double for the SQLite
// implementation. It deep-copies records on the way in and out so stored
// state can never be aliased by callers.
type Memory struct {
	mu       sync.RWMutex
	thoughts map[string]*thought.Thought
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{thoughts: make(map[string]*thought.Thought)}
}

// Upsert stores a copy of the thought, replacing any record with the same ID.
func (m *Memory) Upsert(_ context.Context, t *thought.Thought) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thoughts[t.ID] = t.Clone()
	return nil
}

// Get returns copies of all thoughts matching the filter, unranked.
func (m *Memory) Get(_ context.Context, f Filter) ([]*thought.Thought, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*thought.Thought
	for _, t := range m.thoughts {
		if f.matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// Query returns up to k thoughts nearest to the embedding.
func (m *Memory) Query(ctx context.Context, embedding []float32, k int, f Filter) ([]Match, error) {
	candidates, err := m.Get(ctx, f)
	if err != nil {
		return nil, err
	}
	return rank(embedding, candidates, k), nil
}

// Sessions returns the distinct session IDs present in the store.
func (m *Memory) Sessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, t := range m.thoughts {
		if !seen[t.SessionID] {
			seen[t.SessionID] = true
			ids = append(ids, t.SessionID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteSession removes all thoughts of a session.
func (m *Memory) DeleteSession(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, t := range m.thoughts {
		if t.SessionID == sessionID {
			delete(m.thoughts, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
