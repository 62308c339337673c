// Command auditlog merges S3 server access logs, parses and enriches every
// line, and writes the result to CSV, JSON, MessagePack and SQL tables.
//
// Logging:
//   - The base logger is built from --log-level and --log-format
//   - It is passed down explicitly; there is no slog.SetDefault
//   - Components scope it with a "component" attribute
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// Register every storage backend with the factory; the pipeline file
	// selects one by storage.kind.
	_ "auditlog/internal/storage/all"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
