// Package main provides the sluice CLI entrypoint.
//
// The CLI consumes a fragment stream with `extract`; all other commands
// are read-only.
//
// Usage:
//
//	sluice <command> [subcommand] [options]
//
// Exit codes for `extract`:
//   - 0: success (or advisory budget exceeded)
//   - 1: parse error threshold tripped
//   - 2: stream error
//   - 3: delivery failure
//   - 4: canceled
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lodeworks/sluice/cli/cmd"
	"github.com/lodeworks/sluice/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "sluice",
		Usage:          "Streaming component extraction CLI",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ExtractCommand(),
			cmd.InspectCommand(),
			cmd.GrammarCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() so that the
// extract command's outcome codes reach the caller intact.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
