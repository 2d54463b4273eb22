// Package cmd provides the vulnsage CLI commands.
//
// Commands:
//   - ingest: scrape advisory pages and index them
//   - ask: answer one question against the indexed corpus
//   - reindex: embed stored records that have no vector yet
//   - serve: HTTP API server
//
// Signal handling and graceful shutdown are implemented for all commands
// via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/secsage/vulnsage/internal/log"
)

// Execute is the main entry point for the vulnsage CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "ingest":
		return runIngest()
	case "ask":
		return runAsk()
	case "reindex":
		return runReindex()
	case "serve":
		return runServe()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("vulnsage - Python package vulnerability advisor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vulnsage ingest [-pages N]   Scrape advisory pages and index them")
	fmt.Println("  vulnsage ask \"question\"      Answer a question from the indexed corpus")
	fmt.Println("  vulnsage reindex             Embed stored records without vectors")
	fmt.Println("  vulnsage serve [addr]        Start the HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  vulnsage version             Show version information")
	fmt.Println("  vulnsage help                Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DATABASE_URL       Optional: PostgreSQL URL (overrides postgres_* config)")
	fmt.Println("  DEBUG              Optional: Enable debug logging")
}
