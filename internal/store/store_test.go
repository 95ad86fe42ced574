package store

import (
	"context"
	"testing"

	"github.com/lsewell/trellis/internal/config"
	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/thought"
)

// backends returns both Store implementations so every test runs against
// the SQLite store and its in-memory test double.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := Open(t.TempDir(), config.DefaultConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	e, err := embed.New(embed.ModelChargram)
	if err != nil {
		t.Fatalf("embed.New failed: %v", err)
	}
	vec, err := e.Embed(text)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	return vec
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestUpsertGet_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			in := &thought.Thought{
				ID:                "01TESTULID0000000000000001",
				SessionID:         "s1",
				ThoughtNumber:     2,
				TotalThoughts:     5,
				Content:           "check the cache layer",
				BranchFromThought: intPtr(1),
				BranchID:          strPtr("b1"),
				NextThoughtNeeded: true,
				CustomData:        map[string]any{"k": "v"},
				Embedding:         mustEmbed(t, "check the cache layer"),
				CreatedAt:         1700000000123,
			}
			if err := s.Upsert(ctx, in); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}

			got, err := s.Get(ctx, Filter{SessionID: "s1"})
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("len(got) = %d, want 1", len(got))
			}

			out := got[0]
			if out.ID != in.ID || out.SessionID != "s1" || out.ThoughtNumber != 2 || out.TotalThoughts != 5 {
				t.Errorf("core fields mismatch: %+v", out)
			}
			if out.BranchFromThought == nil || *out.BranchFromThought != 1 {
				t.Errorf("BranchFromThought = %v, want 1", out.BranchFromThought)
			}
			if out.BranchID == nil || *out.BranchID != "b1" {
				t.Errorf("BranchID = %v, want b1", out.BranchID)
			}
			if !out.NextThoughtNeeded {
				t.Error("NextThoughtNeeded = false, want true")
			}
			if out.CustomData["k"] != "v" {
				t.Errorf("CustomData = %v, want map[k:v]", out.CustomData)
			}
			if out.CreatedAt != 1700000000123 {
				t.Errorf("CreatedAt = %d, want 1700000000123", out.CreatedAt)
			}
			if len(out.Embedding) != len(in.Embedding) {
				t.Fatalf("embedding length = %d, want %d", len(out.Embedding), len(in.Embedding))
			}
			for i := range in.Embedding {
				if out.Embedding[i] != in.Embedding[i] {
					t.Fatalf("embedding differs at index %d", i)
				}
			}
		})
	}
}

func TestGet_Filters(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seed := []*thought.Thought{
				{ID: "t1", SessionID: "s1", ThoughtNumber: 1, TotalThoughts: 3, Content: "a", Embedding: []float32{1, 0}, CreatedAt: 1},
				{ID: "t2", SessionID: "s1", ThoughtNumber: 2, TotalThoughts: 3, Content: "b", Embedding: []float32{1, 0}, CreatedAt: 2},
				{ID: "t3", SessionID: "s1", ThoughtNumber: 2, TotalThoughts: 3, Content: "c", BranchID: strPtr("b1"), BranchFromThought: intPtr(1), Embedding: []float32{1, 0}, CreatedAt: 3},
				{ID: "t4", SessionID: "s2", ThoughtNumber: 1, TotalThoughts: 1, Content: "d", Embedding: []float32{1, 0}, CreatedAt: 4},
			}
			for _, th := range seed {
				if err := s.Upsert(ctx, th); err != nil {
					t.Fatalf("Upsert failed: %v", err)
				}
			}

			all, err := s.Get(ctx, Filter{})
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(all) != 4 {
				t.Errorf("unfiltered Get = %d records, want 4", len(all))
			}

			session, _ := s.Get(ctx, Filter{SessionID: "s1"})
			if len(session) != 3 {
				t.Errorf("session filter = %d records, want 3", len(session))
			}

			mainLine, _ := s.Get(ctx, Filter{SessionID: "s1", BranchID: strPtr("")})
			if len(mainLine) != 2 {
				t.Errorf("main-line filter = %d records, want 2", len(mainLine))
			}

			branch, _ := s.Get(ctx, Filter{SessionID: "s1", BranchID: strPtr("b1")})
			if len(branch) != 1 || branch[0].ID != "t3" {
				t.Errorf("branch filter = %v, want [t3]", branch)
			}

			below, _ := s.Get(ctx, Filter{SessionID: "s1", BelowThoughtNumber: 2})
			if len(below) != 1 || below[0].ID != "t1" {
				t.Errorf("below filter = %v, want [t1]", below)
			}
		})
	}
}

func TestUpsert_ReplacesSameID(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := &thought.Thought{ID: "t1", SessionID: "s1", ThoughtNumber: 1, TotalThoughts: 1, Content: "v1", Embedding: []float32{1, 0}, CreatedAt: 1}
			second := &thought.Thought{ID: "t1", SessionID: "s1", ThoughtNumber: 1, TotalThoughts: 1, Content: "v2", Embedding: []float32{0, 1}, CreatedAt: 2}

			if err := s.Upsert(ctx, first); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
			if err := s.Upsert(ctx, second); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}

			got, _ := s.Get(ctx, Filter{SessionID: "s1"})
			if len(got) != 1 {
				t.Fatalf("len(got) = %d, want 1", len(got))
			}
			if got[0].Content != "v2" {
				t.Errorf("Content = %q, want v2", got[0].Content)
			}
		})
	}
}

func TestQuery_RanksByDistance(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			contents := map[string]string{
				"t1": "fix the race condition in the scheduler",
				"t2": "the scheduler race happens during shutdown",
				"t3": "bake a loaf of sourdough bread",
			}
			created := int64(1)
			for id, content := range contents {
				err := s.Upsert(ctx, &thought.Thought{
					ID: id, SessionID: "s1", ThoughtNumber: 1, TotalThoughts: 1,
					Content: content, Embedding: mustEmbed(t, content), CreatedAt: created,
				})
				if err != nil {
					t.Fatalf("Upsert failed: %v", err)
				}
				created++
			}

			matches, err := s.Query(ctx, mustEmbed(t, "race condition in the scheduler"), 3, Filter{})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(matches) != 3 {
				t.Fatalf("len(matches) = %d, want 3", len(matches))
			}

			// Ascending distance, and the off-topic thought last
			for i := 1; i < len(matches); i++ {
				if matches[i].Distance < matches[i-1].Distance {
					t.Errorf("matches not ascending by distance at %d", i)
				}
			}
			if matches[2].Thought.ID != "t3" {
				t.Errorf("least similar = %s, want t3", matches[2].Thought.ID)
			}

			// k truncation
			matches, _ = s.Query(ctx, mustEmbed(t, "race condition"), 1, Filter{})
			if len(matches) != 1 {
				t.Errorf("k=1 returned %d matches", len(matches))
			}
		})
	}
}

func TestQuery_TieBreakByCreatedAt(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Identical embeddings, different created_at: earlier wins.
			vec := mustEmbed(t, "identical")
			newer := &thought.Thought{ID: "zz", SessionID: "s1", ThoughtNumber: 1, TotalThoughts: 1, Content: "identical", Embedding: vec, CreatedAt: 200}
			older := &thought.Thought{ID: "aa", SessionID: "s1", ThoughtNumber: 1, TotalThoughts: 1, Content: "identical", Embedding: vec, CreatedAt: 100}
			if err := s.Upsert(ctx, newer); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
			if err := s.Upsert(ctx, older); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}

			matches, err := s.Query(ctx, vec, 2, Filter{})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(matches) != 2 {
				t.Fatalf("len(matches) = %d, want 2", len(matches))
			}
			if matches[0].Thought.ID != "aa" {
				t.Errorf("first match = %s, want aa (earlier created_at)", matches[0].Thought.ID)
			}
		})
	}
}

func TestSessionsAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i, sid := range []string{"s1", "s1", "s2"} {
				err := s.Upsert(ctx, &thought.Thought{
					ID: string(rune('a' + i)), SessionID: sid, ThoughtNumber: i + 1,
					TotalThoughts: 3, Content: "x", Embedding: []float32{1}, CreatedAt: int64(i),
				})
				if err != nil {
					t.Fatalf("Upsert failed: %v", err)
				}
			}

			ids, err := s.Sessions(ctx)
			if err != nil {
				t.Fatalf("Sessions failed: %v", err)
			}
			if len(ids) != 2 {
				t.Errorf("Sessions = %v, want 2 distinct ids", ids)
			}

			n, err := s.DeleteSession(ctx, "s1")
			if err != nil {
				t.Fatalf("DeleteSession failed: %v", err)
			}
			if n != 2 {
				t.Errorf("deleted = %d, want 2", n)
			}

			remaining, _ := s.Get(ctx, Filter{})
			if len(remaining) != 1 || remaining[0].SessionID != "s2" {
				t.Errorf("remaining = %v, want one s2 record", remaining)
			}
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	err = s.Upsert(ctx, &thought.Thought{
		ID: "t1", SessionID: "s1", ThoughtNumber: 1, TotalThoughts: 1,
		Content: "durable", Embedding: []float32{1, 2}, CreatedAt: 42,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(dir, config.DefaultConfig())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 || got[0].Content != "durable" {
		t.Errorf("got = %v, want the persisted thought", got)
	}
}
