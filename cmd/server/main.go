/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pass engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load the TOML config
  2. Initialize SQLite store
  3. Wire ledger, token manager, top-up processor, reports
  4. Start the token janitor
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  TOML config file path (optional; defaults apply without it)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the token janitor
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/passengine.db"

  # Run with a config file
  ./server -config="./passengine.toml"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: TOML configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venuepass/pass-engine/api"
	"github.com/venuepass/pass-engine/config"
	"github.com/venuepass/pass-engine/ledger"
	"github.com/venuepass/pass-engine/report"
	"github.com/venuepass/pass-engine/store/sqlite"
	"github.com/venuepass/pass-engine/token"
	"github.com/venuepass/pass-engine/topup"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "TOML config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Server.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the domain
	l := ledger.New(store)
	tokens := token.NewManager(store, l, cfg.Token.TTL.Duration)
	topups := topup.NewProcessor(store, l)
	reports := report.NewService(l, store, store)

	granularity, err := ledger.ParseAmount(cfg.Ledger.Granularity)
	if err != nil {
		log.Fatalf("Invalid granularity %q: %v", cfg.Ledger.Granularity, err)
	}

	handler := &api.Handler{
		Ledger:      l,
		Tokens:      tokens,
		Topups:      topups,
		Reports:     reports,
		Catalog:     store,
		Directory:   store,
		Granularity: granularity,
		BankAccount: cfg.Payment.BankAccount,
		Currency:    cfg.Payment.Currency,
	}

	// Background purge of expired tokens
	janitor := token.NewJanitor(tokens, cfg.Token.PurgeInterval.Duration)
	janitor.Start()
	defer janitor.Stop()

	// Create router
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
