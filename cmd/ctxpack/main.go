package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/hpungsan/ctxpack/internal/db"
	"github.com/hpungsan/ctxpack/internal/session"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"init": true, "scan": true, "status": true, "refresh": true,
	"toggle": true, "include": true, "exclude": true,
	"tokens": true, "suggest": true, "dump": true,
	"snapshot": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server. Global flags
// may precede the subcommand.
func isCLIMode() bool {
	for _, arg := range os.Args[1:] {
		if cliCommands[arg] {
			return true
		}
		if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
            _                       _
   ___| |___  ___ __   __ _  ___| | __
  / __| __\ \/ / '_ \ / _' |/ __| |/ /
 | (__| |_ >  <| |_) | (_| | (__|   <
  \___|\__/_/\_\ .__/ \__,_|\___|_|\_\
               |_|

  Pack project files into one LLM-ready document

  Usage: ctxpack <command> [options]
         ctxpack --help

  MCP server mode requires piped input.`)
}

func main() {
	os.Exit(run())
}

func run() int {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return 0
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		return runApp(newCLIApp(&cliEnv{}), os.Args)
	}

	globalDir, err := session.DefaultGlobalDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	database, err := db.Init(globalDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		return 1
	}
	defer database.Close()

	env := &cliEnv{db: database, globalDir: globalDir}

	if isCLIMode() {
		return runApp(newCLIApp(env), os.Args)
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'ctxpack --help' for usage.\n")
		return 1
	}

	// MCP server mode (default), serving the working directory
	return runApp(newCLIApp(env), []string{os.Args[0], "mcp"})
}

// runApp runs the CLI and maps its error to an exit code.
func runApp(app *cli.App, args []string) int {
	err := app.Run(args)
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}
