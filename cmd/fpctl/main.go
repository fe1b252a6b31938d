package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fpbridge/internal/fpctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := fpctl.MainWithArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
