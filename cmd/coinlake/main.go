// coinlake ingests market data snapshots from an object store into
// versioned tables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/coinlake/internal/errors"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line args and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return errors.ExitOK
	}

	code := errors.ExitCode(err)
	var ue *usageError
	if errors.As(err, &ue) {
		code = errors.ExitUsage
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	if a.logger != nil {
		a.logger.Debug("command failed", "exit_code", code, "exit", errors.ExitName(code))
	}
	return code
}

// usageError marks bad invocations (flags, argument counts).
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
