package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"device-rpc/cmd/rpcctl/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(cmd.Execute(ctx))
}
