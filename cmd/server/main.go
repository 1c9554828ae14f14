/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Warp Settlement Engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Create the in-memory token and seed the demo accounts
  4. Wire the escrow ledger and settlement service
  5. Configure HTTP router, start the expiry sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: settlement.db)
           Use ":memory:" for in-memory database
  -term    Policy term in days before expiry (default: 0 = never)

ENVIRONMENT (loaded from .env when present; flags win for port/db/term):
  PORT             HTTP server port
  DB_PATH          SQLite database path
  POLICY_TERM_DAYS Policy term in days
  OWNER_ADDRESS    Escrow owner (default: "owner")
  COMPANY_WALLET   Fee destination (default: "company")
  ESCROW_ACCOUNT   Custody address (default: "escrow")

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the expiry sweeper
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/settlement.db"

  # Run with in-memory database and a one-year policy term
  ./server -db=":memory:" -term=365

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/settlement-engine/api"
	"github.com/warp/settlement-engine/escrow"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/store/sqlite"
)

func main() {
	// .env is optional; flags below override it
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	// Flags
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "settlement.db"), "SQLite database path")
	termDays := flag.Int("term", envInt("POLICY_TERM_DAYS", escrow.NoPolicyTerm), "policy term in days (0 = never expires)")
	flag.Parse()

	owner := settlement.Address(envStr("OWNER_ADDRESS", "owner"))
	company := settlement.Address(envStr("COMPANY_WALLET", "company"))
	account := settlement.Address(envStr("ESCROW_ACCOUNT", "escrow"))

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Demo token. Buyers get funds from the faucet endpoint.
	token := escrow.NewMemToken()

	// Wire the escrow and the service
	ledger := escrow.NewLedger(owner, token, company, account)
	service := escrow.NewService(ledger, store)
	service.SetPolicyTerm(*termDays)

	// Initialize handler
	handler := api.NewHandler(service)
	handler.DevToken = token

	// Create router
	router := api.NewRouter(handler)

	// Start the expiry sweeper
	sweeper := api.NewExpirySweeper(service)
	sweeper.Enabled = *termDays > escrow.NoPolicyTerm
	sweeper.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
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

	sweeper.Stop()

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
