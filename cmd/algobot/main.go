package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/algosec/algosec-go/businessflow"
	"github.com/algosec/algosec-go/fireflow"
	"github.com/algosec/algosec-go/firewallanalyzer"
	"github.com/algosec/algosec-go/internal/api"
	"github.com/algosec/algosec-go/internal/auth"
	"github.com/algosec/algosec-go/internal/config"
	"github.com/algosec/algosec-go/internal/service"
	"github.com/algosec/algosec-go/internal/storage/sql"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Initialize AlgoSec API clients
	var bfOpts []businessflow.Option
	var ffOpts []fireflow.Option
	var faOpts []firewallanalyzer.Option
	bfOpts = append(bfOpts, businessflow.WithLogger(logger))
	ffOpts = append(ffOpts, fireflow.WithLogger(logger))
	faOpts = append(faOpts, firewallanalyzer.WithLogger(logger))
	if !cfg.AlgoSec.VerifySSL {
		bfOpts = append(bfOpts, businessflow.WithInsecureSkipVerify())
		ffOpts = append(ffOpts, fireflow.WithInsecureSkipVerify())
		faOpts = append(faOpts, firewallanalyzer.WithInsecureSkipVerify())
	}

	flowClient := businessflow.NewClient(cfg.AlgoSec.Host, cfg.AlgoSec.User, cfg.AlgoSec.Password, bfOpts...)
	ticketClient := fireflow.NewClient(cfg.AlgoSec.Host, cfg.AlgoSec.User, cfg.AlgoSec.Password, ffOpts...)
	simulationClient := firewallanalyzer.NewClient(cfg.AlgoSec.Host, cfg.AlgoSec.User, cfg.AlgoSec.Password, faOpts...)

	// Initialize request service
	requestService := service.NewRequestService(
		store,
		flowClient,
		ticketClient,
		simulationClient,
		cfg.Draft.Debounce,
		cfg.Draft.AutoApply,
	)
	requestService.DefaultRequestor = cfg.AlgoSec.RequestorName
	requestService.DefaultEmail = cfg.AlgoSec.RequestorEmail

	// Initialize OIDC verifier if enabled
	var verifier *auth.Verifier
	if cfg.OIDC.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		verifier, err = auth.NewVerifier(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID, cfg.OIDC.GetAllowedDomains())
		cancel()
		if err != nil {
			log.Fatalf("Failed to initialize OIDC verifier: %v", err)
		}
	}

	// Create router
	router := api.NewRouter(store, requestService, verifier, cfg.Draft.BootstrapToken)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting AlgoBot on http://%s", cfg.Server.Addr())
	log.Printf("Press Ctrl+C to stop")

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Flush any pending draft applies before exiting
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := requestService.ApplyDrafts(flushCtx); err != nil {
		log.Printf("Failed to apply pending drafts: %v", err)
	}
	flushCancel()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
