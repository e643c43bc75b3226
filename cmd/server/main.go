package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobkeeper/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunServer(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "jobkeeper-server:", err)
		os.Exit(1)
	}
}
