// Package main is the entry point for the nexustodo CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"nexustodo/internal/app"
	"nexustodo/internal/cli"
	"nexustodo/internal/commands"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals. SIGINT during a chat turn only stops that turn.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGINT && commands.Interrupt() {
				continue
			}
			cancel()
			return
		}
	}()

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, app.Open)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}
