package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/secsage/vulnsage/internal/app"
	"github.com/secsage/vulnsage/internal/config"
)

// runAsk answers a single question against the indexed corpus and prints
// the answer with its sources.
func runAsk() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	k := askFlags.Int("k", cfg.DefaultK, "number of records to retrieve")

	args := os.Args[2:]
	var query string
	// Positional question first (vulnsage ask "..."), flags after.
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		query = args[0]
		args = args[1:]
	}
	if err := askFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ask flags: %w", err)
	}
	if query == "" && askFlags.NArg() > 0 {
		query = askFlags.Arg(0)
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("usage: vulnsage ask \"your question\" [-k N]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	result, err := a.Engine.Answer(ctx, query, *k)
	if err != nil {
		return fmt.Errorf("answering query: %w", err)
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, rec := range result.Sources {
			fmt.Printf("  %s  %s (%s)\n", rec.ID, rec.Package, rec.Severity)
		}
	}
	return nil
}
