package ops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/thought"
)

// ChainInput contains parameters for the Chain operation.
type ChainInput struct {
	SessionID     string
	ThoughtNumber int  // upper bound; ignored when Full is set
	Full          bool // return the whole main line without truncation
}

// ChainOutput contains the result of the Chain operation.
type ChainOutput struct {
	SessionID      string             `json:"session_id"`
	Thoughts       []*thought.Thought `json:"thoughts"`
	TotalInSession int                `json:"total_in_session"`
}

// Chain reconstructs the main-line sequence of a session, truncated to
// thoughts with thought_number <= the requested bound unless Full is set.
// The chain is rebuilt from the store on every call; nothing is cached.
func Chain(ctx context.Context, st store.Store, input ChainInput) (*ChainOutput, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, errors.NewInvalidRequest("session_id is required")
	}
	if !input.Full && input.ThoughtNumber < 1 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("thought_number must be at least 1, got %d", input.ThoughtNumber))
	}

	all, err := st.Get(ctx, store.Filter{SessionID: input.SessionID})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.NewSessionNotFound(input.SessionID)
	}

	mainLine := make([]*thought.Thought, 0, len(all))
	for _, t := range all {
		if !t.OnMainLine() {
			continue
		}
		if !input.Full && t.ThoughtNumber > input.ThoughtNumber {
			continue
		}
		mainLine = append(mainLine, t)
	}
	sortChain(mainLine)

	return &ChainOutput{
		SessionID:      input.SessionID,
		Thoughts:       mainLine,
		TotalInSession: len(all),
	}, nil
}

// BranchesInput contains parameters for the Branches operation.
type BranchesInput struct {
	SessionID string
}

// BranchesOutput contains the result of the Branches operation.
type BranchesOutput struct {
	SessionID   string            `json:"session_id"`
	Branches    []*thought.Branch `json:"branches"`
	BranchCount int               `json:"branch_count"`
}

// Branches groups a session's branch thoughts by branch ID, each ordered in
// chain order and rooted at the branch_from_thought of its earliest member.
// The index is built at query time and never stored.
func Branches(ctx context.Context, st store.Store, input BranchesInput) (*BranchesOutput, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, errors.NewInvalidRequest("session_id is required")
	}

	all, err := st.Get(ctx, store.Filter{SessionID: input.SessionID})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.NewSessionNotFound(input.SessionID)
	}

	return &BranchesOutput{
		SessionID:   input.SessionID,
		Branches:    groupBranches(all),
		BranchCount: countBranches(all),
	}, nil
}

// groupBranches builds the branch list from a session's thoughts.
func groupBranches(all []*thought.Thought) []*thought.Branch {
	byID := make(map[string][]*thought.Thought)
	for _, t := range all {
		if t.OnMainLine() {
			continue
		}
		byID[*t.BranchID] = append(byID[*t.BranchID], t)
	}

	branches := make([]*thought.Branch, 0, len(byID))
	for id, members := range byID {
		sortChain(members)
		branches = append(branches, &thought.Branch{
			BranchID: id,
			Root:     members[0].BranchFromThought,
			Thoughts: members,
		})
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].BranchID < branches[j].BranchID
	})
	return branches
}

// countBranches returns the number of distinct branch IDs among thoughts.
func countBranches(all []*thought.Thought) int {
	seen := make(map[string]bool)
	for _, t := range all {
		if !t.OnMainLine() {
			seen[*t.BranchID] = true
		}
	}
	return len(seen)
}
