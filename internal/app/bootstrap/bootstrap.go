package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	lineupescrow "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service"
	postgresadapter "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/adapters/postgres"
	workerapp "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application/workers"
	"github.com/rossfreedman/rally-sub012/internal/platform/config"
	"github.com/rossfreedman/rally-sub012/internal/platform/db"
	"github.com/rossfreedman/rally-sub012/internal/platform/httpserver"
	"github.com/rossfreedman/rally-sub012/internal/platform/messaging"
	"github.com/rossfreedman/rally-sub012/internal/platform/notify"
	"github.com/rossfreedman/rally-sub012/internal/platform/otel"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const otelShutdownTimeout = 5 * time.Second

type APIApp struct {
	server       *httpserver.Server
	postgres     *db.Postgres
	otelShutdown func(context.Context) error
	logger       *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	sweeper      workerapp.ExpirationSweeper
	dispatcher   workerapp.NotificationDispatcher
	outboxRelay  workerapp.OutboxRelay
	pollInterval time.Duration
	otelShutdown func(context.Context) error
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	otelShutdown, err := otel.Setup(context.Background(), cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return nil, err
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(context.Background()); err != nil {
		_ = pg.Close()
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := lineupescrow.NewModule(lineupescrow.Dependencies{
		Sessions:       repo,
		Views:          repo,
		SavedLineups:   repo,
		Idempotency:    repo,
		Tokens:         postgresadapter.RandomTokenIssuer{},
		Clock:          postgresadapter.SystemClock{},
		IDGenerator:    postgresadapter.UUIDGenerator{},
		SessionTTL:     cfg.SessionTTL,
		IdempotencyTTL: cfg.IdempotencyTTL,
		PublicBaseURL:  cfg.PublicBaseURL,
		Logger:         logger,
	})

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:       server,
		postgres:     pg,
		otelShutdown: otelShutdown,
		logger:       logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	otelShutdown, err := otel.Setup(context.Background(), cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return nil, err
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(context.Background()); err != nil {
		_ = pg.Close()
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres: pg,
		sweeper: workerapp.ExpirationSweeper{
			Sessions:    repo,
			IDGenerator: postgresadapter.UUIDGenerator{},
			Clock:       postgresadapter.SystemClock{},
			BatchSize:   100,
			Logger:      logger,
		},
		dispatcher: workerapp.NotificationDispatcher{
			Sessions:      repo,
			Notifier:      notify.NewClient(cfg.NotifyEndpoint, logger),
			Clock:         postgresadapter.SystemClock{},
			BatchSize:     100,
			PublicBaseURL: cfg.PublicBaseURL,
			Logger:        logger,
		},
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			Topic:     "match-operations.escrow",
			BatchSize: 100,
			Logger:    logger,
		},
		pollInterval: 2 * time.Second,
		otelShutdown: otelShutdown,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		_ = a.otelShutdown(ctx)
	}
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.sweeper.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.dispatcher.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		_ = w.otelShutdown(ctx)
	}
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
