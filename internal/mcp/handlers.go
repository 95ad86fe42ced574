package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lsewell/trellis/internal/config"
	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/ops"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/thought"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	st      store.Store
	em      embed.Embedder
	cfg     *config.Config
	baseDir string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st store.Store, em embed.Embedder, cfg *config.Config, baseDir string) *Handlers {
	return &Handlers{st: st, em: em, cfg: cfg, baseDir: baseDir}
}

// Request types for each tool

// RecordRequest represents the arguments for thought_record.
type RecordRequest struct {
	Content           string         `json:"content"`
	ThoughtNumber     int            `json:"thought_number"`
	TotalThoughts     int            `json:"total_thoughts"`
	SessionID         string         `json:"session_id,omitempty"`
	BranchFromThought *int           `json:"branch_from_thought,omitempty"`
	BranchID          *string        `json:"branch_id,omitempty"`
	NextThoughtNeeded bool           `json:"next_thought_needed,omitempty"`
	CustomData        map[string]any `json:"custom_data,omitempty"`
}

// ChainRequest represents the arguments for thought_chain.
type ChainRequest struct {
	SessionID       string `json:"session_id"`
	ThoughtNumber   *int   `json:"thought_number,omitempty"`
	IncludeBranches bool   `json:"include_branches,omitempty"`
}

// SearchRequest represents the arguments for thought_search.
type SearchRequest struct {
	Query           string   `json:"query"`
	NResults        *int     `json:"n_results,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	IncludeBranches bool     `json:"include_branches,omitempty"`
}

// SummaryRequest represents the arguments for session_summary.
type SummaryRequest struct {
	SessionID       string `json:"session_id"`
	IncludeBranches bool   `json:"include_branches,omitempty"`
}

// SessionSearchRequest represents the arguments for session_search.
type SessionSearchRequest struct {
	Query     string   `json:"query"`
	NResults  *int     `json:"n_results,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// PurgeRequest represents the arguments for session_purge.
type PurgeRequest struct {
	SessionID string `json:"session_id"`
}

// ExportRequest represents the arguments for session_export.
type ExportRequest struct {
	SessionID string `json:"session_id"`
}

// chainResponse is the thought_chain payload: the main line plus, on
// request, the session's branches.
type chainResponse struct {
	*ops.ChainOutput
	Branches    []*thought.Branch `json:"branches,omitempty"`
	BranchCount *int              `json:"branch_count,omitempty"`
}

// Handler implementations

// HandleRecord handles the thought_record tool call.
func (h *Handlers) HandleRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecordRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Record(ctx, h.st, h.em, ops.RecordInput{
		Content:           input.Content,
		ThoughtNumber:     input.ThoughtNumber,
		TotalThoughts:     input.TotalThoughts,
		SessionID:         input.SessionID,
		BranchFromThought: input.BranchFromThought,
		BranchID:          input.BranchID,
		NextThoughtNeeded: input.NextThoughtNeeded,
		CustomData:        input.CustomData,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChain handles the thought_chain tool call.
func (h *Handlers) HandleChain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChainRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	chainInput := ops.ChainInput{SessionID: input.SessionID, Full: true}
	if input.ThoughtNumber != nil {
		chainInput.Full = false
		chainInput.ThoughtNumber = *input.ThoughtNumber
	}

	chain, err := ops.Chain(ctx, h.st, chainInput)
	if err != nil {
		return errorResult(err), nil
	}

	resp := chainResponse{ChainOutput: chain}
	if input.IncludeBranches {
		branches, err := ops.Branches(ctx, h.st, ops.BranchesInput{SessionID: input.SessionID})
		if err != nil {
			return errorResult(err), nil
		}
		resp.Branches = branches.Branches
		resp.BranchCount = &branches.BranchCount
	}

	return successResult(resp)
}

// HandleSearch handles the thought_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SearchThoughts(ctx, h.st, h.em, h.cfg, ops.SearchThoughtsInput{
		Query:           input.Query,
		NResults:        orDefaultInt(input.NResults, ops.DefaultThoughtResults),
		Threshold:       orDefaultFloat(input.Threshold, h.cfg.SimilarityThreshold),
		SessionID:       input.SessionID,
		IncludeBranches: input.IncludeBranches,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSummary handles the session_summary tool call.
func (h *Handlers) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SummaryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Summarize(ctx, h.st, ops.SummarizeInput{
		SessionID:       input.SessionID,
		IncludeBranches: input.IncludeBranches,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSessionSearch handles the session_search tool call.
func (h *Handlers) HandleSessionSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionSearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SearchSessions(ctx, h.st, h.em, ops.SearchSessionsInput{
		Query:     input.Query,
		NResults:  orDefaultInt(input.NResults, ops.DefaultSessionResults),
		Threshold: orDefaultFloat(input.Threshold, h.cfg.SimilarityThreshold),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the session_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.st, ops.PurgeInput{SessionID: input.SessionID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the session_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.st, ops.ExportInput{
		SessionID: input.SessionID,
		BaseDir:   h.baseDir,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Default helpers for omitted optional arguments. A submitted zero is
// passed through to validation; only absence gets the default.

func orDefaultInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orDefaultFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if terr, ok := err.(*errors.TrellisError); ok {
		errorObj := map[string]any{
			"code":    terr.Code,
			"message": terr.Message,
			"status":  terr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if terr.Code != errors.ErrInternal && terr.Details != nil {
			errorObj["details"] = terr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
