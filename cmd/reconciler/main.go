package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobkeeper/internal/app"
)

func main() {
	drain := flag.Bool("drain", false, "remove every broker trigger instead of reconciling")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunReconciler(ctx, *drain); err != nil {
		fmt.Fprintln(os.Stderr, "jobkeeper-reconciler:", err)
		os.Exit(1)
	}
}
