package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// LedgerURL points at the durable hype balance service. Empty means
	// the in-memory fallback ledger.
	LedgerURL string `env:"LEDGER_URL"`

	MaxConnections      int     `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"10"`

	SendBufferSize     int           `env:"SEND_BUFFER_SIZE" default:"16"`
	BackpressurePolicy string        `env:"BACKPRESSURE_POLICY" default:"drop_newest"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.BackpressurePolicy {
	case "drop_newest", "drop_oldest":
	default:
		return fmt.Errorf("BACKPRESSURE_POLICY must be drop_newest or drop_oldest, got %q", cfg.BackpressurePolicy)
	}

	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}
	if cfg.ConnectionRate <= 0 {
		return fmt.Errorf("CONNECTION_RATE must be positive, got %v", cfg.ConnectionRate)
	}
	if cfg.ConnectionBurst <= 0 {
		return fmt.Errorf("CONNECTION_BURST must be positive, got %d", cfg.ConnectionBurst)
	}
	if cfg.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", cfg.SendBufferSize)
	}

	return nil
}

// IsDevelopment reports whether the process runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}
