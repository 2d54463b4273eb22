package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/secsage/vulnsage/internal/app"
	"github.com/secsage/vulnsage/internal/config"
)

// reindexBatchLimit bounds one reindex pass.
const reindexBatchLimit = 500

// runReindex embeds and indexes stored records that have no embedding
// reference yet, typically after embedding-service outages during ingest.
func runReindex() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	indexed, failed, err := a.Pipeline.Reindex(ctx, reindexBatchLimit)
	if err != nil {
		return fmt.Errorf("reindexing: %w", err)
	}

	fmt.Printf("Reindex complete: %d indexed, %d failed\n", indexed, failed)
	return nil
}
