// Package main provides the entry point for the readtime server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/di"
	"github.com/listenupapp/readtime-server/internal/logger"
)

func main() {
	injector := di.NewContainer()

	// Store, catalog, services, sweep job and HTTP server.
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down server gracefully...")

	// Reverse dependency order: HTTP server and sweep job stop before the
	// catalog and store are closed.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Server stopped")
}
