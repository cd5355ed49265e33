package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/logging"
	"github.com/hpungsan/ctxpack/internal/mcp"
	"github.com/hpungsan/ctxpack/internal/ops"
	"github.com/hpungsan/ctxpack/internal/selection"
	"github.com/hpungsan/ctxpack/internal/session"
	"github.com/hpungsan/ctxpack/internal/tokenizer"
)

// exitInvariant is the exit status for a broken internal invariant
// (EX_SOFTWARE).
const exitInvariant = 70

// cliEnv carries what commands need beyond their own flags.
type cliEnv struct {
	db        *sql.DB
	globalDir string
	models    *tokenizer.Registry // nil means the default registry
	logger    *zap.Logger
}

// open opens the project named by the global flags.
func (e *cliEnv) open(c *cli.Context) (*session.Session, error) {
	s, err := session.Open(c.Context, session.Options{
		Root:      c.String("root"),
		GlobalDir: e.globalDir,
		StateFile: c.String("state-file"),
		Model:     c.String("model"),
		Models:    e.models,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, w := range s.Warnings {
		e.logger.Warn(w.Message, zap.String("code", string(w.Code)))
	}
	return s, nil
}

// withSession wraps a command action that needs an open project.
func (e *cliEnv) withSession(action func(*cli.Context, *session.Session) (any, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := e.open(c)
		if err != nil {
			return outputError(err)
		}
		output, err := action(c, s)
		if err != nil {
			return outputError(err)
		}
		if output == nil {
			return nil
		}
		return outputJSON(output)
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *cliEnv) *cli.App {
	env.logger = logging.OrNop(env.logger)

	app := &cli.App{
		Name:    "ctxpack",
		Usage:   "Pack project files into one LLM-ready document",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"C"}, Value: ".", Usage: "Project directory"},
			&cli.StringFlag{Name: "state-file", Usage: "Selection file (default .ctxpack/selection.json)"},
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model for token counts"},
			&cli.BoolFlag{Name: "debug", Usage: "Verbose logging to stderr"},
		},
		Before: func(c *cli.Context) error {
			if !c.Bool("debug") {
				return nil
			}
			logger, err := logging.New(true, Version)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			env.logger = logger
			return nil
		},
		Commands: []*cli.Command{
			initCmd(),
			scanCmd(env),
			statusCmd(env),
			refreshCmd(env),
			toggleCmd(env),
			patternCmd(env, "include", selection.Include),
			patternCmd(env, "exclude", selection.Exclude),
			tokensCmd(env),
			suggestCmd(env),
			dumpCmd(env),
			snapshotCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// initCmd creates the init command.
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write .ctxpack/config.json with defaults for the project type",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Project type (detected when omitted)"},
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing config"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Init(ops.InitInput{
				Root:        c.String("root"),
				ProjectType: c.String("type"),
				Force:       c.Bool("force"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// scanCmd creates the scan command.
func scanCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Report what the project catalog holds and skips",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "List every ignored path"},
		},
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			return ops.Scan(s, c.Bool("verbose")), nil
		}),
	}
}

// statusCmd creates the status command.
func statusCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the selection",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-depth", Usage: "Stop descending below this depth"},
			&cli.BoolFlag{Name: "collapse", Usage: "Hide children of fully checked or unchecked directories"},
			&cli.BoolFlag{Name: "plain", Usage: "Print only the tree"},
		},
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			output, err := ops.Status(s, ops.StatusInput{
				MaxDepth: c.Int("max-depth"),
				Collapse: c.Bool("collapse"),
			})
			if err != nil {
				return nil, err
			}
			if c.Bool("plain") {
				fmt.Fprint(os.Stdout, output.Tree)
				fmt.Fprintf(os.Stdout, "%d of %d files selected\n", output.Summary.FileCount, output.Summary.TotalFiles)
				return nil, nil
			}
			return output, nil
		}),
	}
}

// refreshCmd creates the refresh command.
func refreshCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Rescan the project and drop vanished files from the selection",
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			return ops.Refresh(c.Context, s)
		}),
	}
}

// toggleCmd creates the toggle command.
func toggleCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "toggle",
		Usage:     "Flip files or directories in or out of the selection",
		ArgsUsage: "<path>...",
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			if c.NArg() == 0 {
				return nil, errors.NewInvalidRequest("at least one path is required")
			}
			return ops.Toggle(s, ops.ToggleInput{Paths: c.Args().Slice()})
		}),
	}
}

// patternCmd creates the include and exclude commands.
func patternCmd(env *cliEnv, name string, action selection.Action) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     fmt.Sprintf("%s every file matching the globs, in order", name),
		ArgsUsage: "<glob>...",
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			if c.NArg() == 0 {
				return nil, errors.NewInvalidRequest("at least one glob is required")
			}
			return ops.ApplyPatterns(s, ops.PatternInput{Ops: ops.Patterns(action, c.Args().Slice()...)})
		}),
	}
}

// tokensCmd creates the tokens command.
func tokensCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "Count tokens of the selection against the model's context window",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Report every known model"},
			&cli.BoolFlag{Name: "per-file", Usage: "Include per-file counts"},
		},
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			return ops.Tokens(c.Context, s, ops.TokensInput{
				AllModels: c.Bool("all"),
				PerFile:   c.Bool("per-file"),
			})
		}),
	}
}

// suggestCmd creates the suggest command.
func suggestCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Suggest imported modules and test companions of the selection",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum suggestions"},
			&cli.BoolFlag{Name: "apply", Usage: "Include every suggestion"},
		},
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			return ops.Suggest(s, ops.SuggestInput{Limit: c.Int("limit"), Apply: c.Bool("apply")})
		}),
	}
}

// dumpCmd creates the dump command. Paths given on the command line are
// relative to the working directory and may point outside the project.
func dumpCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Render the selected files into one document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default from config)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "markdown|json|html|template"},
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "text/template file"},
			&cli.BoolFlag{Name: "manifest", Usage: "Write a manifest next to the output"},
			&cli.StringFlag{Name: "changed-since", Usage: "Only render files changed since this manifest"},
			&cli.BoolFlag{Name: "skip-tokens", Usage: "Do not count tokens"},
			&cli.BoolFlag{Name: "stdout", Usage: "Print the document instead of writing a file"},
		},
		Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
			input := ops.DumpInput{
				Format:           c.String("format"),
				Manifest:         c.Bool("manifest"),
				Model:            c.String("model"),
				SkipTokens:       c.Bool("skip-tokens"),
				Inline:           c.Bool("stdout"),
				AllowOutsideRoot: true,
			}
			var err error
			if input.Output, err = absPath(c.String("output")); err != nil {
				return nil, err
			}
			if input.Template, err = absPath(c.String("template")); err != nil {
				return nil, err
			}
			if input.ChangedSince, err = absPath(c.String("changed-since")); err != nil {
				return nil, err
			}

			output, err := ops.Dump(c.Context, s, input)
			if err != nil {
				return nil, err
			}
			if input.Inline {
				fmt.Fprint(os.Stdout, output.Content)
				return nil, nil
			}
			return output, nil
		}),
	}
}

// snapshotCmd creates the snapshot command and its subcommands.
func snapshotCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Save and restore named selections",
		Subcommands: []*cli.Command{
			{
				Name:      "save",
				Usage:     "Save the selection under a name",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "with-tokens", Usage: "Record the token total"},
				},
				Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
					return ops.SnapshotStore(c.Context, env.db, s, ops.SnapshotStoreInput{
						Name:       c.Args().First(),
						WithTokens: c.Bool("with-tokens"),
					})
				}),
			},
			{
				Name:  "list",
				Usage: "List saved selections, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSnapshotLimit, Usage: "Maximum items"},
					&cli.IntFlag{Name: "offset", Usage: "Items to skip"},
				},
				Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
					return ops.SnapshotList(env.db, s, ops.SnapshotListInput{
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
				}),
			},
			{
				Name:      "restore",
				Usage:     "Replace the selection with a saved one",
				ArgsUsage: "<id|name>",
				Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
					return ops.SnapshotRestore(env.db, s, ops.SnapshotRef{Ref: c.Args().First()})
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a saved selection",
				ArgsUsage: "<id|name>",
				Action: env.withSession(func(c *cli.Context, s *session.Session) (any, error) {
					return ops.SnapshotDelete(env.db, s, ops.SnapshotRef{Ref: c.Args().First()})
				}),
			},
		},
	}
}

// mcpCmd creates the mcp command, which serves the project over stdio.
func mcpCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the project as an MCP server on stdin/stdout",
		Action: func(c *cli.Context) error {
			if !c.Bool("debug") {
				logger, err := logging.New(false, Version)
				if err == nil {
					env.logger = logger
				}
			}
			s, err := env.open(c)
			if err != nil {
				return outputError(err)
			}
			if unknown := mcp.ValidateDisabledTools(s.Config.DisabledTools); len(unknown) > 0 {
				env.logger.Warn("Unknown disabled_tools", zap.Strings("tools", unknown))
			}
			if unknown := mcp.ValidateDisabledTypes(s.Config.DisabledTypes); len(unknown) > 0 {
				env.logger.Warn("Unknown disabled_types", zap.Strings("types", unknown))
			}
			defer func() { _ = env.logger.Sync() }()
			return mcp.Run(env.db, s, Version, env.logger)
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
	if pErr, ok := errors.As(err); ok {
		code := 1
		if pErr.Code == errors.ErrInvariantViolation {
			code = exitInvariant
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), code)
	}
	return cli.Exit(err.Error(), 1)
}

// absPath resolves p against the working directory; empty stays empty.
func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path %q: %v", p, err))
	}
	return abs, nil
}
