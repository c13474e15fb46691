package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dataq/dataq/internal/cli/dataqctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := dataqctl.Run(ctx, os.Args[1:], dataqctl.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
