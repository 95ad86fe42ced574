package thought

// Thought represents one recorded step in a sequential reasoning process.
// Thoughts are append-only: a resubmission of the same position creates a
// new record rather than mutating an existing one.
type Thought struct {
	// ID is a ULID that uniquely identifies this thought
	ID string `json:"id"`

	// SessionID groups thoughts into an ordered sequence
	SessionID string `json:"session_id"`

	// ThoughtNumber is the 1-based position requested by the caller.
	// Gaps and non-monotonic submissions are stored as-is.
	ThoughtNumber int `json:"thought_number"`

	// TotalThoughts is the caller's expected sequence length at submission time
	TotalThoughts int `json:"total_thoughts"`

	// Content is the thought text
	Content string `json:"content"`

	// BranchFromThought marks this thought as diverging from the named
	// thought number in the same session (nullable, advisory)
	BranchFromThought *int `json:"branch_from_thought,omitempty"`

	// BranchID identifies the branch this thought belongs to (nullable);
	// thoughts without it belong to the implicit main line
	BranchID *string `json:"branch_id,omitempty"`

	// NextThoughtNeeded is a caller-declared advisory flag
	NextThoughtNeeded bool `json:"next_thought_needed"`

	// CustomData is an open mapping, opaque to the engine, stored and
	// returned verbatim (stored as JSON in DB)
	CustomData map[string]any `json:"custom_data,omitempty"`

	// Embedding is the vector computed from Content at creation time
	Embedding []float32 `json:"-"`

	// CreatedAt is the Unix millisecond timestamp when the thought was recorded
	CreatedAt int64 `json:"created_at"`
}

// Clone returns a deep copy of the thought. Used by the in-memory store so
// callers can never alias stored state.
func (t *Thought) Clone() *Thought {
	c := *t
	if t.BranchFromThought != nil {
		v := *t.BranchFromThought
		c.BranchFromThought = &v
	}
	if t.BranchID != nil {
		v := *t.BranchID
		c.BranchID = &v
	}
	if t.CustomData != nil {
		c.CustomData = make(map[string]any, len(t.CustomData))
		for k, v := range t.CustomData {
			c.CustomData[k] = v
		}
	}
	if t.Embedding != nil {
		c.Embedding = append([]float32(nil), t.Embedding...)
	}
	return &c
}

// OnMainLine reports whether the thought belongs to the implicit main line.
func (t *Thought) OnMainLine() bool {
	return t.BranchID == nil || *t.BranchID == ""
}

// Before reports whether t sorts before other in chain order:
// thought_number ascending, then created_at ascending (earliest submission
// wins the earlier position), then ID as a final deterministic tie-break.
func (t *Thought) Before(other *Thought) bool {
	if t.ThoughtNumber != other.ThoughtNumber {
		return t.ThoughtNumber < other.ThoughtNumber
	}
	if t.CreatedAt != other.CreatedAt {
		return t.CreatedAt < other.CreatedAt
	}
	return t.ID < other.ID
}

// Branch is the set of thoughts sharing a branch ID within a session,
// ordered by chain order. Root is the branch_from_thought value of the
// earliest member (nullable when no member declared one).
type Branch struct {
	BranchID string     `json:"branch_id"`
	Root     *int       `json:"branch_from_thought,omitempty"`
	Thoughts []*Thought `json:"thoughts"`
}
