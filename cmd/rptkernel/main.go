package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/notargets/RPTKernel/utils"
)

const usage = `usage: rptkernel <command> [flags]

commands:
  import       archive a gmsh mesh and a nodal count table as a checkpoint
  sample       archive a box (or gmsh) mesh sampled from synthetic detector models
  reconstruct  reconstruct the trajectory of the configured measurements
  raw          dump the checkpoint nodal counts as a text table

run 'rptkernel <command> -h' for the flags of a command
`

type command func(ctx context.Context, args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"import":      runImport,
	"sample":      runSample,
	"reconstruct": runReconstruct,
	"raw":         runRaw,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches one subcommand and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(ctx, args[1:], stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		logger, _ := utils.NewLogger("error", "text", stderr)
		logger.Error("command failed", "command", args[0], "err", err)
		return 1
	}
	return 0
}
