// Package ops implements the engine operations: recording thoughts,
// reconstructing chains and branches, similarity search over thoughts, and
// session-level aggregation. Each operation takes typed Input/Output structs
// and works against the store and embedder capabilities; no durable state
// lives here.
package ops

import (
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/thought"
)

// Result-count bounds. Callers that omit n_results get the defaults at the
// handler layer; a submitted n_results below 1 is rejected, not defaulted.
const (
	DefaultThoughtResults = 5
	DefaultSessionResults = 3
	MaxResults            = 100
)

// validateSearchParams checks the shared n_results/threshold rules for
// similarity search operations.
func validateSearchParams(nResults int, threshold float64) error {
	if nResults < 1 {
		return errors.NewInvalidRequest(fmt.Sprintf("n_results must be at least 1, got %d", nResults))
	}
	if nResults > MaxResults {
		return errors.NewInvalidRequest(fmt.Sprintf("n_results must be at most %d, got %d", MaxResults, nResults))
	}
	if threshold < 0 || threshold > 1 {
		return errors.NewInvalidRequest(fmt.Sprintf("threshold must be within [0, 1], got %v", threshold))
	}
	return nil
}

// generateThoughtID generates a new ULID.
func generateThoughtID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// sortChain orders thoughts in chain order: thought_number ascending, then
// created_at ascending, then ID.
func sortChain(thoughts []*thought.Thought) {
	sort.Slice(thoughts, func(i, j int) bool {
		return thoughts[i].Before(thoughts[j])
	})
}

// cleanBranchID normalizes an optional branch ID: empty or whitespace-only
// values mean "main line" and collapse to nil.
func cleanBranchID(branchID *string) *string {
	if branchID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*branchID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
