package ops

import (
	"context"

	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/thought"
)

// SummarizeInput contains parameters for the Summarize operation.
type SummarizeInput struct {
	SessionID       string
	IncludeBranches bool // include branch thoughts in the representative embedding
}

// SummarizeOutput is the derived session-level view. Sessions are never
// persisted; this is recomputed from the session's thoughts on every call.
type SummarizeOutput struct {
	SessionID      string `json:"session_id"`
	TotalThoughts  int    `json:"total_thoughts"`
	MainLineLength int    `json:"main_line_length"`
	BranchCount    int    `json:"branch_count"`
	FirstThought   string `json:"first_thought"`
	LastThought    string `json:"last_thought"`

	// Embedding is the element-wise mean of the member thoughts'
	// embeddings (main line only unless IncludeBranches was set).
	Embedding []float32 `json:"representative_embedding,omitempty"`
}

// Summarize computes the session summary from its chain and branches.
func Summarize(ctx context.Context, st store.Store, input SummarizeInput) (*SummarizeOutput, error) {
	chain, err := Chain(ctx, st, ChainInput{SessionID: input.SessionID, Full: true})
	if err != nil {
		return nil, err
	}
	branches, err := Branches(ctx, st, BranchesInput{SessionID: input.SessionID})
	if err != nil {
		return nil, err
	}

	members := make([]*thought.Thought, 0, chain.TotalInSession)
	members = append(members, chain.Thoughts...)
	if input.IncludeBranches {
		for _, b := range branches.Branches {
			members = append(members, b.Thoughts...)
		}
		sortChain(members)
	}

	// Streaming accumulation keeps memory bounded for large sessions.
	var acc embed.MeanAccumulator
	for _, t := range members {
		// Mixed dimensionality can only happen when the configured model
		// changed between runs; surface it rather than averaging garbage.
		if err := acc.Add(t.Embedding); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	out := &SummarizeOutput{
		SessionID:      input.SessionID,
		TotalThoughts:  chain.TotalInSession,
		MainLineLength: len(chain.Thoughts),
		BranchCount:    branches.BranchCount,
		Embedding:      acc.Mean(),
	}
	if len(members) > 0 {
		out.FirstThought = members[0].Content
		out.LastThought = members[len(members)-1].Content
	}
	return out, nil
}
