package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/lsewell/trellis/internal/config"
	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/thought"
)

// SearchThoughtsInput contains parameters for the SearchThoughts operation.
type SearchThoughtsInput struct {
	Query           string  // required
	NResults        int     // required, >= 1
	Threshold       float64 // minimum score, [0, 1]
	SessionID       string  // optional: scope the search to one session
	IncludeBranches bool    // when false, only main-line thoughts qualify
}

// ThoughtMatch is one ranked thought-level result.
type ThoughtMatch struct {
	Thought *thought.Thought `json:"thought"`
	Score   float64          `json:"score"`
}

// SearchThoughtsOutput contains the result of the SearchThoughts operation.
type SearchThoughtsOutput struct {
	Results    []ThoughtMatch `json:"results"`
	TotalFound int            `json:"total_found"`
	Threshold  float64        `json:"threshold"`
}

// SearchThoughts ranks stored thoughts by similarity to the query text.
// The backend is over-fetched by cfg.SearchOverfetch so that threshold and
// branch filtering can still yield NResults qualifying hits whenever enough
// candidates exist. An empty result is not an error.
func SearchThoughts(ctx context.Context, st store.Store, em embed.Embedder, cfg *config.Config, input SearchThoughtsInput) (*SearchThoughtsOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if err := validateSearchParams(input.NResults, input.Threshold); err != nil {
		return nil, err
	}

	vec, err := em.Embed(input.Query)
	if err != nil {
		return nil, errors.NewEmbedding("embedding query text failed", err)
	}
	if len(vec) != em.Dimensions() {
		return nil, errors.NewEmbedding(
			fmt.Sprintf("embedder returned %d dimensions, want %d", len(vec), em.Dimensions()), nil)
	}

	overfetch := 1
	if cfg != nil && cfg.SearchOverfetch > 1 {
		overfetch = cfg.SearchOverfetch
	}

	matches, err := st.Query(ctx, vec, input.NResults*overfetch, store.Filter{
		SessionID: input.SessionID,
	})
	if err != nil {
		return nil, err
	}

	// Matches arrive ascending by distance with created_at tie-breaks, and
	// the distance-to-score mapping is monotonic, so filtering in order
	// preserves the required score-descending output order.
	results := make([]ThoughtMatch, 0, input.NResults)
	for _, m := range matches {
		score := embed.Similarity(m.Distance)
		if score < input.Threshold {
			continue
		}
		if !input.IncludeBranches && !m.Thought.OnMainLine() {
			continue
		}
		results = append(results, ThoughtMatch{Thought: m.Thought, Score: score})
		if len(results) == input.NResults {
			break
		}
	}

	return &SearchThoughtsOutput{
		Results:    results,
		TotalFound: len(results),
		Threshold:  input.Threshold,
	}, nil
}
