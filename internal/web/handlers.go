package web

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/lsewell/trellis/internal/config"
	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/ops"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/thought"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	st       store.Store
	em       embed.Embedder
	cfg      *config.Config
	renderer *Renderer
}

// HandleSessions handles GET /sessions — list all sessions with summaries.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessionIDs, err := h.st.Sessions(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	sort.Strings(sessionIDs)

	items := make([]SessionListItem, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		summary, err := ops.Summarize(r.Context(), h.st, ops.SummarizeInput{SessionID: sid})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		items = append(items, SessionListItem{SessionID: sid, Summary: summary})
	}

	h.renderer.renderPage(w, "sessions", SessionsPageData{
		PageData: PageData{
			Title:   "Sessions",
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		Items: items,
	})
}

// HandleSession handles GET /sessions/{id} — view one session's chain and branches.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("session ID is required"))
		return
	}

	chain, err := ops.Chain(r.Context(), h.st, ops.ChainInput{SessionID: id, Full: true})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	branches, err := ops.Branches(r.Context(), h.st, ops.BranchesInput{SessionID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	summary, err := ops.Summarize(r.Context(), h.st, ops.SummarizeInput{SessionID: id, IncludeBranches: true})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	rendered := make([]renderedBranch, len(branches.Branches))
	for i, b := range branches.Branches {
		rendered[i] = renderedBranch{
			BranchID: b.BranchID,
			Root:     b.Root,
			Thoughts: renderThoughts(b.Thoughts),
		}
	}

	h.renderer.renderPage(w, "session", SessionPageData{
		PageData: PageData{
			Title:   "Session " + id,
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		SessionID: id,
		Summary:   summary,
		MainLine:  renderThoughts(chain.Thoughts),
		Branches:  rendered,
	})
}

// HandleSearch handles GET /search — semantic search across thoughts.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	sessionID := r.URL.Query().Get("session_id")

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:     query,
		SessionID: sessionID,
		HasQuery:  query != "",
	}

	if query == "" {
		h.renderer.renderPage(w, "search", data)
		return
	}

	result, err := ops.SearchThoughts(r.Context(), h.st, h.em, h.cfg, ops.SearchThoughtsInput{
		Query:           query,
		NResults:        parseIntParam(r, "n_results", ops.DefaultThoughtResults),
		Threshold:       parseFloatParam(r, "threshold", h.cfg.SimilarityThreshold),
		SessionID:       sessionID,
		IncludeBranches: parseBoolParam(r, "include_branches"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data.Results = result.Results
	h.renderer.renderPage(w, "search", data)
}

// HandlePurge handles POST /sessions/{id}/purge — permanently delete a session.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("session ID is required"))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	result, err := ops.Purge(r.Context(), h.st, ops.PurgeInput{SessionID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, map[string]any{
			"purged":  result.Purged,
			"message": result.Message,
		})
		return
	}

	http.Redirect(w, r, "/sessions", http.StatusFound)
}

// renderThoughts converts thoughts to their rendered-markdown form.
func renderThoughts(thoughts []*thought.Thought) []renderedThought {
	out := make([]renderedThought, len(thoughts))
	for i, t := range thoughts {
		out[i] = renderedThought{Thought: t, HTML: renderMarkdown(t.Content)}
	}
	return out
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseFloatParam parses a float query parameter with a default value.
func parseFloatParam(r *http.Request, name string, defaultVal float64) float64 {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
