// Command jarvis-safety provides guarded command execution with risk
// classification, rate limiting, and human approval.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ScarletRedJoker/jarvis-safety/internal/cli"
	"github.com/charmbracelet/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}
