package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/secsage/vulnsage/internal/app"
	"github.com/secsage/vulnsage/internal/config"
)

// runIngest scrapes the configured number of advisory pages, stores the
// records and indexes their embeddings.
func runIngest() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ingestFlags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	pages := ingestFlags.Int("pages", cfg.ScrapePages, "number of listing pages to fetch")
	if err := ingestFlags.Parse(os.Args[2:]); err != nil {
		return fmt.Errorf("parsing ingest flags: %w", err)
	}
	if *pages < 1 {
		return fmt.Errorf("pages must be at least 1, got %d", *pages)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	stats, err := a.Pipeline.Run(ctx, *pages)
	if err != nil {
		return fmt.Errorf("ingestion run: %w", err)
	}

	fmt.Printf("Ingestion complete: %d records seen, %d stored\n", stats.Fetched, stats.Stored)
	return nil
}
