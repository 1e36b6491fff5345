package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/michaelpento.lv/forkarb/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		if errors.Is(err, cmd.ErrScenariosFailed) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
