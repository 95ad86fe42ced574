package ops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/store"
)

// SearchSessionsInput contains parameters for the SearchSessions operation.
type SearchSessionsInput struct {
	Query     string  // required
	NResults  int     // required, >= 1
	Threshold float64 // minimum score, [0, 1]
}

// SessionMatch is one ranked session-level result.
type SessionMatch struct {
	SessionID string           `json:"session_id"`
	Score     float64          `json:"score"`
	Summary   *SummarizeOutput `json:"summary"`
}

// SearchSessionsOutput contains the result of the SearchSessions operation.
type SearchSessionsOutput struct {
	Results    []SessionMatch `json:"results"`
	TotalFound int            `json:"total_found"`
	Threshold  float64        `json:"threshold"`
}

// SearchSessions ranks whole sessions by cosine similarity between the
// query embedding and each session's representative (mean) embedding. The
// candidate set is every distinct session in the collection; score
// semantics and ordering rules match SearchThoughts.
func SearchSessions(ctx context.Context, st store.Store, em embed.Embedder, input SearchSessionsInput) (*SearchSessionsOutput, error) {
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

	sessionIDs, err := st.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SessionMatch, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		summary, err := Summarize(ctx, st, SummarizeInput{
			SessionID:       sessionID,
			IncludeBranches: true,
		})
		if err != nil {
			return nil, err
		}

		distance := 1 - embed.Cosine(vec, summary.Embedding)
		score := embed.Similarity(distance)
		if score < input.Threshold {
			continue
		}
		results = append(results, SessionMatch{
			SessionID: sessionID,
			Score:     score,
			Summary:   summary,
		})
	}

	// Score descending; session ID ascending as the deterministic tie-break
	// (sessions have no single created_at to fall back on).
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].SessionID < results[j].SessionID
	})

	if len(results) > input.NResults {
		results = results[:input.NResults]
	}

	return &SearchSessionsOutput{
		Results:    results,
		TotalFound: len(results),
		Threshold:  input.Threshold,
	}, nil
}
