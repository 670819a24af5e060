package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tmcore/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "tmcore:", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for failures a rerun cannot fix, such as bad input or
// configuration, and 1 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if !services.IsRetryable(err) {
		return 2
	}
	return 1
}
