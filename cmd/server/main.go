/*
main.go - Server entry point

PURPOSE:

	Starts the challenge engine HTTP server. Configuration comes from
	CHALLENGE_* environment variables (see config package) with
	command-line flags as overrides.

STARTUP SEQUENCE:
 1. Load config from the environment, apply flag overrides
 2. Open the SQLite store (creates schema if missing)
 3. Build the engine, aggregator, and HTTP router
 4. Serve until SIGINT/SIGTERM, then drain with a deadline

USAGE:

	server                          # defaults (port 8080, ./challenge.db)
	server -port 9090               # custom port
	server -db /data/challenge.db   # custom database path

SEE ALSO:
  - api/server.go: Route definitions
  - config/config.go: Environment configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/challenge-engine/api"
	"github.com/warp/challenge-engine/challenge"
	"github.com/warp/challenge-engine/config"
	"github.com/warp/challenge-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	port := flag.Int("port", cfg.Port, "HTTP listen port")
	dbPath := flag.String("db", cfg.DBPath, "Path to SQLite database file")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	handler := api.NewHandler(store, challenge.WithNotifier(challenge.LogNotifier{}))
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	// Serve in the background so the main goroutine can wait for signals.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Challenge engine listening on %s (db: %s)", cfg.Addr(), cfg.DBPath)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
		}
	}

	log.Println("Server stopped")
}
