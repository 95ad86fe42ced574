package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/thought"
)

// RecordInput contains parameters for the Record operation.
type RecordInput struct {
	Content           string         // required
	ThoughtNumber     int            // required, >= 1
	TotalThoughts     int            // required, >= 1
	SessionID         string         // optional: generated when empty
	BranchFromThought *int           // optional, >= 1 when present
	BranchID          *string        // optional
	NextThoughtNeeded bool           // advisory
	CustomData        map[string]any // opaque, returned verbatim
}

// RecordOutput contains the result of the Record operation.
type RecordOutput struct {
	ThoughtID         string             `json:"thought_id"`
	SessionID         string             `json:"session_id"`
	ThoughtNumber     int                `json:"thought_number"`
	TotalThoughts     int                `json:"total_thoughts"`
	NextThoughtNeeded bool               `json:"next_thought_needed"`
	PreviousThoughts  []*thought.Thought `json:"previous_thoughts"`
}

// Record validates and persists one thought. It is append-only: every call
// creates a new record, even for a resubmitted (session, number, branch)
// position. The embedding is computed before the single durable write, so a
// failed upsert leaves no partial state behind.
func Record(ctx context.Context, st store.Store, em embed.Embedder, input RecordInput) (*RecordOutput, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}
	if input.ThoughtNumber < 1 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("thought_number must be at least 1, got %d", input.ThoughtNumber))
	}
	if input.TotalThoughts < 1 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("total_thoughts must be at least 1, got %d", input.TotalThoughts))
	}
	// branch_from_thought is advisory metadata, not a foreign key: the
	// referenced number is range-checked but not resolved against the store.
	if input.BranchFromThought != nil && *input.BranchFromThought < 1 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("branch_from_thought must be at least 1, got %d", *input.BranchFromThought))
	}

	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	id, err := generateThoughtID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	vec, err := em.Embed(input.Content)
	if err != nil {
		return nil, errors.NewEmbedding("embedding thought content failed", err)
	}
	if len(vec) != em.Dimensions() {
		return nil, errors.NewEmbedding(
			fmt.Sprintf("embedder returned %d dimensions, want %d", len(vec), em.Dimensions()), nil)
	}

	branchID := cleanBranchID(input.BranchID)

	t := &thought.Thought{
		ID:                id,
		SessionID:         sessionID,
		ThoughtNumber:     input.ThoughtNumber,
		TotalThoughts:     input.TotalThoughts,
		Content:           input.Content,
		BranchFromThought: input.BranchFromThought,
		BranchID:          branchID,
		NextThoughtNeeded: input.NextThoughtNeeded,
		CustomData:        input.CustomData,
		Embedding:         vec,
		CreatedAt:         time.Now().UnixMilli(),
	}

	if err := st.Upsert(ctx, t); err != nil {
		return nil, err
	}

	previous, err := previousThoughts(ctx, st, t)
	if err != nil {
		return nil, err
	}

	return &RecordOutput{
		ThoughtID:         t.ID,
		SessionID:         t.SessionID,
		ThoughtNumber:     t.ThoughtNumber,
		TotalThoughts:     t.TotalThoughts,
		NextThoughtNeeded: t.NextThoughtNeeded,
		PreviousThoughts:  previous,
	}, nil
}

// previousThoughts returns the thoughts leading up to t in chain order:
// earlier members of the same branch, or earlier main-line thoughts when t
// is on the main line.
func previousThoughts(ctx context.Context, st store.Store, t *thought.Thought) ([]*thought.Thought, error) {
	scope := ""
	if t.BranchID != nil {
		scope = *t.BranchID
	}

	previous, err := st.Get(ctx, store.Filter{
		SessionID:          t.SessionID,
		BranchID:           &scope,
		BelowThoughtNumber: t.ThoughtNumber,
	})
	if err != nil {
		return nil, err
	}

	sortChain(previous)
	if previous == nil {
		previous = []*thought.Thought{}
	}
	return previous, nil
}
