package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/filingdrift/internal/api"
	"github.com/dgallion1/filingdrift/internal/config"
	"github.com/dgallion1/filingdrift/internal/index"
	"github.com/dgallion1/filingdrift/internal/parser"
	"github.com/dgallion1/filingdrift/internal/pipeline"
	"github.com/dgallion1/filingdrift/internal/similarity"
	"github.com/dgallion1/filingdrift/internal/stats"
	"github.com/dgallion1/filingdrift/internal/store"
	"github.com/dgallion1/filingdrift/internal/textnorm"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Error("create upload dir", "path", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	latency := stats.NewLatency(cfg.StatsWindow)
	ix := index.NewIndexer(db, textnorm.New(cfg.StemTokens), index.Options{
		Passphrase: cfg.PDFPassphrase,
		Latency:    latency,
	}, log)
	eng := similarity.NewEngine(db, log)
	worker := pipeline.NewWorker(ix, eng, parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext}, log)
	orch := pipeline.NewOrchestrator(cfg, worker, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, db, latency, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		db.Close()
	}()

	log.Info("starting filingdrift", "port", cfg.Port, "database", cfg.DatabasePath)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
