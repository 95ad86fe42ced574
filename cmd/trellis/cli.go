package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lsewell/trellis/internal/config"
	"github.com/lsewell/trellis/internal/embed"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/ops"
	"github.com/lsewell/trellis/internal/store"
	"github.com/lsewell/trellis/internal/web"
)

// cliEnv bundles the dependencies CLI commands run against.
type cliEnv struct {
	st      store.Store
	em      embed.Embedder
	cfg     *config.Config
	baseDir string
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *cliEnv) *cli.App {
	app := &cli.App{
		Name:    "trellis",
		Usage:   "Sequential thinking engine with semantic recall",
		Version: Version,
		Commands: []*cli.Command{
			recordCmd(env),
			chainCmd(env),
			branchesCmd(env),
			summaryCmd(env),
			searchCmd(env),
			sessionsCmd(env),
			purgeCmd(env),
			exportCmd(env),
			uiCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// recordCmd creates the record command.
func recordCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record a thought (reads content from stdin)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "number", Aliases: []string{"n"}, Required: true, Usage: "Thought number, starting at 1"},
			&cli.IntFlag{Name: "total", Aliases: []string{"t"}, Required: true, Usage: "Estimated total thoughts"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session ID (a new session is created when omitted)"},
			&cli.IntFlag{Name: "branch-from", Usage: "Main-line thought number this branch diverges from"},
			&cli.StringFlag{Name: "branch", Aliases: []string{"b"}, Usage: "Branch ID"},
			&cli.BoolFlag{Name: "next-needed", Usage: "Another thought is expected after this one"},
			&cli.StringFlag{Name: "custom", Usage: "Custom metadata as a JSON object"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}

			content, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if content == "" {
				return outputError(errors.NewInvalidRequest("content is required"))
			}

			input := ops.RecordInput{
				Content:           content,
				ThoughtNumber:     c.Int("number"),
				TotalThoughts:     c.Int("total"),
				SessionID:         c.String("session"),
				NextThoughtNeeded: c.Bool("next-needed"),
			}

			if c.IsSet("branch-from") {
				from := c.Int("branch-from")
				input.BranchFromThought = &from
			}
			if branch := c.String("branch"); branch != "" {
				input.BranchID = &branch
			}
			if custom := c.String("custom"); custom != "" {
				var data map[string]any
				if err := json.Unmarshal([]byte(custom), &data); err != nil {
					return outputError(errors.NewInvalidRequest("custom must be a JSON object"))
				}
				input.CustomData = data
			}

			output, err := ops.Record(c.Context, env.st, env.em, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// chainCmd creates the chain command.
func chainCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "chain",
		Usage:     "Show a session's main-line thought sequence",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "number", Aliases: []string{"n"}, Usage: "Only include thoughts up to this number"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ChainInput{
				SessionID: c.Args().First(),
				Full:      true,
			}
			if c.IsSet("number") {
				input.Full = false
				input.ThoughtNumber = c.Int("number")
			}

			output, err := ops.Chain(c.Context, env.st, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// branchesCmd creates the branches command.
func branchesCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "branches",
		Usage:     "List a session's branches",
		ArgsUsage: "<session-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Branches(c.Context, env.st, ops.BranchesInput{
				SessionID: c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// summaryCmd creates the summary command.
func summaryCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "Summarize a session",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-branches", Usage: "Include branch thoughts in the summary"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Summarize(c.Context, env.st, ops.SummarizeInput{
				SessionID:       c.Args().First(),
				IncludeBranches: c.Bool("include-branches"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find thoughts similar to a query",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultThoughtResults, Usage: "Maximum results"},
			&cli.Float64Flag{Name: "threshold", Usage: "Minimum similarity score in [0, 1]"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Restrict the search to one session"},
			&cli.BoolFlag{Name: "include-branches", Usage: "Also match thoughts on branches"},
		},
		Action: func(c *cli.Context) error {
			threshold := env.cfg.SimilarityThreshold
			if c.IsSet("threshold") {
				threshold = c.Float64("threshold")
			}

			output, err := ops.SearchThoughts(c.Context, env.st, env.em, env.cfg, ops.SearchThoughtsInput{
				Query:           strings.Join(c.Args().Slice(), " "),
				NResults:        c.Int("limit"),
				Threshold:       threshold,
				SessionID:       c.String("session"),
				IncludeBranches: c.Bool("include-branches"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// sessionsCmd creates the sessions command.
func sessionsCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "sessions",
		Usage:     "Find sessions similar to a query",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSessionResults, Usage: "Maximum sessions"},
			&cli.Float64Flag{Name: "threshold", Usage: "Minimum similarity score in [0, 1]"},
		},
		Action: func(c *cli.Context) error {
			threshold := env.cfg.SimilarityThreshold
			if c.IsSet("threshold") {
				threshold = c.Float64("threshold")
			}

			output, err := ops.SearchSessions(c.Context, env.st, env.em, ops.SearchSessionsInput{
				Query:     strings.Join(c.Args().Slice(), " "),
				NResults:  c.Int("limit"),
				Threshold: threshold,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Permanently delete a session's thoughts",
		ArgsUsage: "<session-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Purge(c.Context, env.st, ops.PurgeInput{
				SessionID: c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a session to a JSON file under the exports directory",
		ArgsUsage: "<session-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, env.st, ops.ExportInput{
				SessionID: c.Args().First(),
				BaseDir:   env.baseDir,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the web viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8377, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(env.st, env.em, env.cfg, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tErr, ok := err.(*errors.TrellisError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
