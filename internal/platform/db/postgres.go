package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rossfreedman/rally-sub012/internal/platform/db/migrations"
)

const (
	pingTimeout     = 5 * time.Second
	maxOpenConns    = 16
	connMaxIdleTime = 5 * time.Minute
)

// Postgres owns the gorm handle shared by the API and worker processes.
type Postgres struct {
	DB *gorm.DB
}

// Connect opens and verifies the connection. Escrow timestamps are stored
// in UTC, so gorm's NowFunc is pinned to UTC as well.
func Connect(dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap postgres sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{DB: gormDB}, nil
}

// Migrate applies the embedded goose migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	if p == nil || p.DB == nil {
		return errors.New("postgres connection is required")
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("unwrap postgres sql handle: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
