package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graphium/importsvc/internal/config"
	"github.com/graphium/importsvc/internal/db"
	"github.com/graphium/importsvc/internal/importer"
	"github.com/graphium/importsvc/internal/middleware"
	"github.com/graphium/importsvc/internal/repository"
	"github.com/graphium/importsvc/internal/stream"

	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		panic(err)
	}
	logger := config.SetupLogger(cfg.Log)

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	batchRepo := repository.NewBatchRepository(conn.Pool)
	recordRepo := repository.NewRecordRepository(conn.Pool)
	eventRepo := repository.NewEventRepository(conn.Pool)
	userDir := repository.NewUserDirectory(conn.Pool)

	var processingStream repository.ProcessingStream
	if cfg.Stream.URL != "" {
		processingStream = stream.NewClient(cfg.Stream.URL)
	} else {
		logger.Warn("no processing stream configured, submissions will be logged only")
		processingStream = &stream.LogStream{Logger: logger}
	}

	service := importer.NewService(
		batchRepo,
		recordRepo,
		eventRepo,
		userDir,
		processingStream,
		importer.WithReprocessConcurrency(cfg.Reprocess.MaxConcurrent),
		importer.WithLogger(logger),
	)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := middleware.Logging(logger, corsHandler.Handler(middleware.Authenticate(importer.NewHTTPHandler(service))))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("import service listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
