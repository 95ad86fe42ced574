// Package store provides the durable collection of thought records behind a
// narrow capability interface (upsert, exact get, ranked query), so the ops
// layer never depends on a particular backend. The SQLite implementation is
// the canonical store; the in-memory implementation backs tests.
package store

import (
	"context"
	"sort"

	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/thought"
)

// Filter narrows Get and Query to a subset of stored thoughts.
// Zero value matches everything.
type Filter struct {
	// SessionID restricts to one session when non-empty.
	SessionID string

	// BranchID restricts to one branch when non-nil. A pointer to the
	// empty string matches only main-line thoughts.
	BranchID *string

	// BelowThoughtNumber restricts to thought_number < N when N > 0.
	BelowThoughtNumber int
}

// matches reports whether t satisfies the filter.
func (f Filter) matches(t *thought.Thought) bool {
	if f.SessionID != "" && t.SessionID != f.SessionID {
		return false
	}
	if f.BranchID != nil {
		if *f.BranchID == "" {
			if !t.OnMainLine() {
				return false
			}
		} else if t.BranchID == nil || *t.BranchID != *f.BranchID {
			return false
		}
	}
	if f.BelowThoughtNumber > 0 && t.ThoughtNumber >= f.BelowThoughtNumber {
		return false
	}
	return true
}

// Match is one ranked result from Query. Distance is cosine distance
// (1 - cosine similarity); smaller is closer.
type Match struct {
	Thought  *thought.Thought
	Distance float64
}

// Store is the vector collection consumed by the engine.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert durably writes one thought record.
	Upsert(ctx context.Context, t *thought.Thought) error

	// Get returns all thoughts matching the filter, unranked.
	// Used for exact chain/branch reconstruction.
	Get(ctx context.Context, f Filter) ([]*thought.Thought, error)

	// Query returns up to k thoughts nearest to the embedding, ascending
	// by distance, optionally pre-filtered.
	Query(ctx context.Context, embedding []float32, k int, f Filter) ([]Match, error)

	// Sessions returns the distinct session IDs present in the collection.
	Sessions(ctx context.Context) ([]string, error)

	// DeleteSession removes all thoughts of a session and returns how many
	// records were deleted.
	DeleteSession(ctx context.Context, sessionID string) (int, error)

	// Close releases backend resources.
	Close() error
}

// rank scores candidates against the query embedding and returns the k
// nearest, ascending by distance with (created_at, id) as deterministic
// tie-breaks. Shared by both backends: distance math lives in one place so
// thought-level and session-level search can never diverge.
func rank(embedding []float32, candidates []*thought.Thought, k int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, t := range candidates {
		matches = append(matches, Match{
			Thought:  t,
			Distance: 1 - embed.Cosine(embedding, t.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		if matches[i].Thought.CreatedAt != matches[j].Thought.CreatedAt {
			return matches[i].Thought.CreatedAt < matches[j].Thought.CreatedAt
		}
		return matches[i].Thought.ID < matches[j].Thought.ID
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
