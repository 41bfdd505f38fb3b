package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencall/opencall/internal/cmd"
	"github.com/opencall/opencall/internal/exitcode"
	"github.com/opencall/opencall/internal/ux"
)

func main() {
	// Create a context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
			stop()
			exitcode.Exit(exitcode.Interrupted)
		}

		ux.PrintError(os.Stderr, err, os.Getenv("NO_COLOR") != "")
		stop()
		exitcode.ExitWithError(err)
	}
}
