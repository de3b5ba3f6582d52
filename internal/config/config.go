package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"transform-backend.db"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	WorkerConcurrency int `env:"CONCURRENCY" envDefault:"1"`

	ChunkSize      int           `env:"CHUNK_SIZE" envDefault:"50"`
	JobTimeout     time.Duration `env:"JOB_TIMEOUT" envDefault:"1h"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	DequeueTimeout time.Duration `env:"DEQUEUE_TIMEOUT" envDefault:"1s"`

	OpenAIModel       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAITemperature float64 `env:"OPENAI_TEMPERATURE" envDefault:"0.2"`

	APIPort string `env:"API_PORT" envDefault:"8001"`
}

// Load reads configuration from the environment, with .env support for local
// development.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading, continuing with environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}
