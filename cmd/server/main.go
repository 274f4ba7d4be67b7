/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the resale order engine.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve      Run the HTTP API and the reconciliation scheduler
  reconcile  Run one reconciliation pass and print the report

FLAGS (persistent):
  --config   YAML config file (defaults apply when omitted)
  --db       SQLite database path, overrides database.path
             Use ":memory:" for in-memory database
  --addr     Listen address, overrides server.addr (serve only)

STARTUP SEQUENCE (serve):
  1. Load config, build logger
  2. Initialize SQLite store (and Redis when enabled)
  3. Wire order service, matcher, scheduler, handler
  4. Configure HTTP router
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the scheduler (waits for an in-flight pass)
  4. Close database and Redis connections

EXAMPLES:
  ./server serve --config=./config.yaml
  ./server serve --db=":memory:" --addr=":3000"
  ./server reconcile --config=./config.yaml

SEE ALSO:
  - commands.go: Command implementations
  - api/server.go: Router configuration
  - config/config.go: Configuration schema
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	listenAddr string

	rootCmd = &cobra.Command{
		Use:           "server",
		Short:         "Order and inventory engine for the furniture resale marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation scheduler",
		RunE:  runServe,
	}

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Migrate cached orders into the transaction store once and exit",
		RunE:  runReconcile,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides config)")

	rootCmd.AddCommand(serveCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
