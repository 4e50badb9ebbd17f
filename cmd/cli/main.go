// Command sitetime is the command-line client for site time reporting.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc/status"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	c := newCLI(defaultDeps(), os.Stdin, os.Stdout)
	err := c.root().ExecuteContext(ctx)
	c.close()
	stop()

	os.Exit(exitCode(os.Stderr, err))
}

// exitCode reports err on w and returns the process exit status.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(w, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		return 1
	}
	fmt.Fprintln(w, "error:", err)
	return 1
}
