package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/doctranslate/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
