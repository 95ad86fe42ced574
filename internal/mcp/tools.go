package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Descriptions are written for the calling model: they
// spell out defaults and the shape of optional arguments.

var recordToolDef = mcp.NewTool("thought_record",
	mcp.WithDescription("Record one thought in a sequential thinking session. Omit session_id on the first call to start a new session; reuse the returned session_id to continue it. Set branch_id and branch_from_thought to explore an alternative line of reasoning."),
	mcp.WithString("content",
		mcp.Required(),
		mcp.Description("The thought text"),
	),
	mcp.WithNumber("thought_number",
		mcp.Required(),
		mcp.Description("Position in the sequence, starting at 1. May exceed total_thoughts when the session runs long."),
	),
	mcp.WithNumber("total_thoughts",
		mcp.Required(),
		mcp.Description("Current estimate of how many thoughts the session will need"),
	),
	mcp.WithString("session_id",
		mcp.Description("Session to append to; a new session is created when omitted"),
	),
	mcp.WithNumber("branch_from_thought",
		mcp.Description("Main-line thought number this branch diverges from"),
	),
	mcp.WithString("branch_id",
		mcp.Description("Identifier of the branch this thought belongs to"),
	),
	mcp.WithBoolean("next_thought_needed",
		mcp.Description("Whether another thought is expected after this one"),
	),
	mcp.WithObject("custom_data",
		mcp.Description("Arbitrary metadata stored with the thought and returned verbatim"),
	),
)

var chainToolDef = mcp.NewTool("thought_chain",
	mcp.WithDescription("Reconstruct the main-line sequence of a session up to a thought number. Branch thoughts are never part of the chain."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session to read"),
	),
	mcp.WithNumber("thought_number",
		mcp.Description("Upper bound on thought numbers to include; the full chain is returned when omitted"),
	),
	mcp.WithBoolean("include_branches",
		mcp.Description("Also return the session's branches, grouped by branch ID"),
	),
)

var searchToolDef = mcp.NewTool("thought_search",
	mcp.WithDescription("Find stored thoughts semantically similar to a query. Scores are in [0, 1], higher is more similar."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Text to search for"),
	),
	mcp.WithNumber("n_results",
		mcp.Description("Maximum results to return (default 5, max 100)"),
	),
	mcp.WithNumber("threshold",
		mcp.Description("Minimum similarity score in [0, 1] (default 0.75)"),
	),
	mcp.WithString("session_id",
		mcp.Description("Restrict the search to one session"),
	),
	mcp.WithBoolean("include_branches",
		mcp.Description("Also match thoughts on branches (default false)"),
	),
)

var summaryToolDef = mcp.NewTool("session_summary",
	mcp.WithDescription("Summarize one session: thought counts, branch count, and its first and last thoughts."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session to summarize"),
	),
	mcp.WithBoolean("include_branches",
		mcp.Description("Include branch thoughts in the first/last view and the representative embedding"),
	),
)

var sessionSearchToolDef = mcp.NewTool("session_search",
	mcp.WithDescription("Find whole sessions semantically similar to a query, ranked by each session's aggregate content."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Text to search for"),
	),
	mcp.WithNumber("n_results",
		mcp.Description("Maximum sessions to return (default 3, max 100)"),
	),
	mcp.WithNumber("threshold",
		mcp.Description("Minimum similarity score in [0, 1] (default 0.75)"),
	),
)

var purgeToolDef = mcp.NewTool("session_purge",
	mcp.WithDescription("Permanently delete every thought of a session. This cannot be undone."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session to delete"),
	),
)

var exportToolDef = mcp.NewTool("session_export",
	mcp.WithDescription("Write a session's full chain and branches to a JSON file under the exports directory."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session to export"),
	),
)
