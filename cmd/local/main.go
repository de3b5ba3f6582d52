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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"transform-backend/cmd"
	"transform-backend/internal/api"
	"transform-backend/internal/config"
	"transform-backend/internal/coordination"
	"transform-backend/internal/database"
	"transform-backend/internal/llm"
	"transform-backend/internal/orchestrator"
	"transform-backend/internal/worker"
)

// Single-process mode: the in-memory store replaces Redis and a worker
// goroutine replaces the separate worker processes, so the whole system runs
// from one binary with the same job protocol.
func main() {
	log.Println("Starting in single-process mode...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dbPath := cfg.DatabaseURL
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
	}

	db, err := database.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	store := coordination.NewMemoryStore()
	defer store.Close()

	model := llm.NewOpenAI(cfg.OpenAIModel, cfg.OpenAITemperature)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	w := worker.New(store, model, cfg.DequeueTimeout)
	go w.Run(workerCtx)

	orch := orchestrator.New(store, model, orchestrator.Options{
		ChunkSize:    cfg.ChunkSize,
		JobTimeout:   cfg.JobTimeout,
		PollInterval: cfg.PollInterval,
	})

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	apiHandler := api.NewBackendService(db, orch)
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")

		stopWorker()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("single-process backend listening", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Stopped.")
}
