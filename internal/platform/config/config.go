package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string   `env:"SERVICE_NAME" envDefault:"lineup-escrow"`
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	PostgresDSN  string   `env:"POSTGRES_DSN"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`

	// PublicBaseURL prefixes recipient share links, so it must be the
	// address recipients can actually reach, not the bind address.
	PublicBaseURL  string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	NotifyEndpoint string `env:"NOTIFY_ENDPOINT"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`

	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"48h"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"168h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
