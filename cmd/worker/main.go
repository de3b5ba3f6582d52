package main

import (
	"context"
	"log"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"transform-backend/cmd"
	"transform-backend/internal/config"
	"transform-backend/internal/coordination"
	"transform-backend/internal/llm"
	"transform-backend/internal/worker"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Unlike the API process, a worker is useless without the store.
	store, err := coordination.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to coordination store: %v", err)
	}
	defer store.Close()

	model := llm.NewOpenAI(cfg.OpenAIModel, cfg.OpenAITemperature)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	numWorkers := cfg.WorkerConcurrency
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
		log.Printf("Worker concurrency not specified or invalid, defaulting to %d", numWorkers)
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			worker.New(store, model, cfg.DequeueTimeout).Run(ctx)
		}()
	}

	log.Printf("%d worker loops started. Waiting for tasks. Press Ctrl+C to exit.", numWorkers)
	wg.Wait()

	log.Println("Worker process stopped.")
}
