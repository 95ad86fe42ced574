package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lsewell/trellis/internal/config"
	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/store"
)

// testSetup creates handlers backed by an in-memory store.
func testSetup(t *testing.T) *Handlers {
	t.Helper()

	cfg := config.DefaultConfig()
	em, err := embed.New(cfg.EmbeddingModel)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	return NewHandlers(store.NewMemory(), em, cfg, t.TempDir())
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// recordThought stores one thought through the handler and returns the
// decoded result payload.
func recordThought(t *testing.T, h *Handlers, args map[string]any) map[string]any {
	t.Helper()

	result, err := h.HandleRecord(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("HandleRecord returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("setup record failed: %v", extractErrorMessage(result))
	}
	return decodeResult(t, result)
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is not TextContent")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	return payload
}

// TestHandleRecord tests the thought_record handler.
func TestDecode(t *testing.T) {
	type args struct {
		Content  string `json:"content"`
		NResults *int   `json:"n_results,omitempty"`
	}

	t.Run("typed fields", func(t *testing.T) {
		got, err := decode[args](makeRequest(map[string]any{
			"content":   "check the cache",
			"n_results": 4,
		}))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got.Content != "check the cache" {
			t.Errorf("Content = %q, want %q", got.Content, "check the cache")
		}
		if got.NResults == nil || *got.NResults != 4 {
			t.Errorf("NResults = %v, want 4", got.NResults)
		}
	})

	t.Run("absent optional stays nil", func(t *testing.T) {
		got, err := decode[args](makeRequest(map[string]any{"content": "x"}))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got.NResults != nil {
			t.Errorf("NResults = %v, want nil", got.NResults)
		}
	})

	t.Run("wrong argument type", func(t *testing.T) {
		if _, err := decode[args](makeRequest(map[string]any{"content": 7})); err == nil {
			t.Error("decode accepted a non-string content argument")
		}
	})
}

func TestHandleRecord(t *testing.T) {
	h := testSetup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "record valid thought",
			args: map[string]any{
				"content":        "First step of the analysis",
				"thought_number": 1,
				"total_thoughts": 3,
			},
			wantError: false,
		},
		{
			name: "record without content",
			args: map[string]any{
				"thought_number": 1,
				"total_thoughts": 3,
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "record with zero thought_number",
			args: map[string]any{
				"content":        "bad position",
				"thought_number": 0,
				"total_thoughts": 3,
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "record branch thought",
			args: map[string]any{
				"content":             "Alternative direction",
				"thought_number":      2,
				"total_thoughts":      3,
				"session_id":          "mcp-test",
				"branch_from_thought": 1,
				"branch_id":           "alt",
			},
			wantError: false,
		},
		{
			name: "record with invalid branch_from_thought",
			args: map[string]any{
				"content":             "bad branch",
				"thought_number":      2,
				"total_thoughts":      3,
				"branch_from_thought": 0,
				"branch_id":           "alt",
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "record with custom data",
			args: map[string]any{
				"content":        "Annotated step",
				"thought_number": 1,
				"total_thoughts": 1,
				"custom_data":    map[string]any{"phase": "review"},
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleRecord(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

// TestHandleRecordSessionFlow verifies session continuity across calls.
func TestHandleRecordSessionFlow(t *testing.T) {
	h := testSetup(t)

	first := recordThought(t, h, map[string]any{
		"content":        "opening thought",
		"thought_number": 1,
		"total_thoughts": 2,
	})
	sid, ok := first["session_id"].(string)
	if !ok || sid == "" {
		t.Fatalf("no session_id in record result: %v", first)
	}

	second := recordThought(t, h, map[string]any{
		"content":        "closing thought",
		"thought_number": 2,
		"total_thoughts": 2,
		"session_id":     sid,
	})
	if second["session_id"] != sid {
		t.Errorf("session_id = %v, want %v", second["session_id"], sid)
	}
	previous, ok := second["previous_thoughts"].([]any)
	if !ok || len(previous) != 1 {
		t.Errorf("previous_thoughts = %v, want one entry", second["previous_thoughts"])
	}
}

// TestHandleChain tests the thought_chain handler.
func TestHandleChain(t *testing.T) {
	h := testSetup(t)
	ctx := context.Background()
	sid := "chain-test"

	for i, content := range []string{"one", "two", "three"} {
		recordThought(t, h, map[string]any{
			"content":        content,
			"thought_number": i + 1,
			"total_thoughts": 3,
			"session_id":     sid,
		})
	}
	recordThought(t, h, map[string]any{
		"content":             "side quest",
		"thought_number":      2,
		"total_thoughts":      3,
		"session_id":          sid,
		"branch_from_thought": 1,
		"branch_id":           "side",
	})

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
		wantLen   int
	}{
		{
			name:    "full chain by default",
			args:    map[string]any{"session_id": sid},
			wantLen: 3,
		},
		{
			name:    "truncated chain",
			args:    map[string]any{"session_id": sid, "thought_number": 2},
			wantLen: 2,
		},
		{
			name:      "missing session_id",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "unknown session",
			args:      map[string]any{"session_id": "nope"},
			wantError: true,
			errorCode: "SESSION_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleChain(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			if result.IsError {
				t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
			}
			payload := decodeResult(t, result)
			thoughts, _ := payload["thoughts"].([]any)
			if len(thoughts) != tt.wantLen {
				t.Errorf("thoughts = %d, want %d", len(thoughts), tt.wantLen)
			}
		})
	}

	t.Run("include branches", func(t *testing.T) {
		result, err := h.HandleChain(ctx, makeRequest(map[string]any{
			"session_id":       sid,
			"include_branches": true,
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		payload := decodeResult(t, result)
		branches, _ := payload["branches"].([]any)
		if len(branches) != 1 {
			t.Errorf("branches = %d, want 1", len(branches))
		}
		if payload["branch_count"] != float64(1) {
			t.Errorf("branch_count = %v, want 1", payload["branch_count"])
		}
	})
}

// TestHandleSearch tests the thought_search handler.
func TestHandleSearch(t *testing.T) {
	h := testSetup(t)
	ctx := context.Background()

	recordThought(t, h, map[string]any{
		"content":        "profiling the storage layer for slow queries",
		"thought_number": 1,
		"total_thoughts": 1,
		"session_id":     "search-test",
	})

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "search with defaults",
			args: map[string]any{"query": "slow storage queries"},
		},
		{
			name:      "search without query",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "threshold above one",
			args:      map[string]any{"query": "x", "threshold": 1.01},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "negative threshold",
			args:      map[string]any{"query": "x", "threshold": -0.1},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "zero n_results rejected not defaulted",
			args:      map[string]any{"query": "x", "n_results": 0},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "explicit zero threshold accepted",
			args: map[string]any{"query": "slow storage queries", "threshold": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleSearch(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

// TestHandleSummary tests the session_summary handler.
func TestHandleSummary(t *testing.T) {
	h := testSetup(t)
	ctx := context.Background()
	sid := "summary-test"

	recordThought(t, h, map[string]any{
		"content":        "only thought",
		"thought_number": 1,
		"total_thoughts": 1,
		"session_id":     sid,
	})

	result, err := h.HandleSummary(ctx, makeRequest(map[string]any{"session_id": sid}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	payload := decodeResult(t, result)
	if payload["total_thoughts"] != float64(1) {
		t.Errorf("total_thoughts = %v, want 1", payload["total_thoughts"])
	}
	if payload["first_thought"] != "only thought" {
		t.Errorf("first_thought = %v", payload["first_thought"])
	}

	missing, err := h.HandleSummary(ctx, makeRequest(map[string]any{"session_id": "gone"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, missing, "SESSION_NOT_FOUND")
}

// TestHandleSessionSearch tests the session_search handler.
func TestHandleSessionSearch(t *testing.T) {
	h := testSetup(t)
	ctx := context.Background()

	recordThought(t, h, map[string]any{
		"content":        "planning the cache eviction rollout",
		"thought_number": 1,
		"total_thoughts": 1,
		"session_id":     "rollout",
	})

	result, err := h.HandleSessionSearch(ctx, makeRequest(map[string]any{
		"query":     "cache eviction rollout",
		"threshold": 0,
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	payload := decodeResult(t, result)
	results, _ := payload["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	top, _ := results[0].(map[string]any)
	if top["session_id"] != "rollout" {
		t.Errorf("top session = %v, want rollout", top["session_id"])
	}

	invalid, err := h.HandleSessionSearch(ctx, makeRequest(map[string]any{"query": ""}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, invalid, "INVALID_REQUEST")
}

// TestHandlePurge tests the session_purge handler.
func TestHandlePurge(t *testing.T) {
	h := testSetup(t)
	ctx := context.Background()
	sid := "purge-test"

	recordThought(t, h, map[string]any{
		"content":        "ephemeral",
		"thought_number": 1,
		"total_thoughts": 1,
		"session_id":     sid,
	})

	result, err := h.HandlePurge(ctx, makeRequest(map[string]any{"session_id": sid}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	payload := decodeResult(t, result)
	if payload["purged"] != float64(1) {
		t.Errorf("purged = %v, want 1", payload["purged"])
	}

	again, err := h.HandlePurge(ctx, makeRequest(map[string]any{"session_id": sid}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, again, "SESSION_NOT_FOUND")
}

// TestHandleExport tests the session_export handler.
func TestHandleExport(t *testing.T) {
	h := testSetup(t)
	ctx := context.Background()
	sid := "export-test"

	recordThought(t, h, map[string]any{
		"content":        "worth keeping",
		"thought_number": 1,
		"total_thoughts": 1,
		"session_id":     sid,
	})

	result, err := h.HandleExport(ctx, makeRequest(map[string]any{"session_id": sid}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	payload := decodeResult(t, result)
	if payload["count"] != float64(1) {
		t.Errorf("count = %v, want 1", payload["count"])
	}
	if payload["path"] == "" {
		t.Error("no path in export result")
	}
}

// TestServerToolFiltering verifies disabled tools and types are not registered.
func TestServerToolFiltering(t *testing.T) {
	if unknown := ValidateDisabledTools([]string{"thought_record", "bogus_tool"}); len(unknown) != 1 || unknown[0] != "bogus_tool" {
		t.Errorf("ValidateDisabledTools = %v, want [bogus_tool]", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"thought", "capsule"}); len(unknown) != 1 || unknown[0] != "capsule" {
		t.Errorf("ValidateDisabledTypes = %v, want [capsule]", unknown)
	}
	if got := GetTypeForTool("session_summary"); got != "session" {
		t.Errorf("GetTypeForTool = %q, want session", got)
	}

	tools := ExpandTypesToTools([]string{"session"})
	want := map[string]bool{
		"session_summary": true,
		"session_search":  true,
		"session_purge":   true,
		"session_export":  true,
	}
	if len(tools) != len(want) {
		t.Fatalf("ExpandTypesToTools = %v, want 4 session tools", tools)
	}
	for _, name := range tools {
		if !want[name] {
			t.Errorf("unexpected tool %q in expansion", name)
		}
	}

	if len(AllToolNames()) != 7 {
		t.Errorf("AllToolNames = %d entries, want 7", len(AllToolNames()))
	}
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error result, got success")
		return
	}
	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}
	if errorObj["code"] != expectedCode {
		t.Errorf("error code = %v, want %v", errorObj["code"], expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
