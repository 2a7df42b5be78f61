package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/config"
	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/db/memory"
	mysqlp "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/db/mysql"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/db/postgres"
	redisp "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/db/redis"
)

// ErrNoMigration is returned by Migrate for backends without a schema.
var ErrNoMigration = errors.New("driver has no schema to migrate")

// Store is an opened record store plus its lifecycle hooks.
type Store struct {
	Repo   domain.Repository
	Driver string

	migrate func(ctx context.Context) error
	ping    func(ctx context.Context) error
	close   func() error
}

func (s *Store) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return ErrNoMigration
	}
	return s.migrate(ctx)
}

// Check implements the health checker used by the router.
func (s *Store) Check(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open picks the record store backend named by database.driver.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	attempts := cfg.Workflow.UpsertRetries
	switch cfg.Database.Driver {
	case "mysql":
		conn, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		repo := mysqlp.NewAnalysisRepository(conn, attempts)
		return sqlStore("mysql", conn, repo, repo.Migrate), nil
	case "postgres":
		conn, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		repo := postgres.NewAnalysisRepository(conn, attempts)
		return sqlStore("postgres", conn, repo, repo.Migrate), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		repo := redisp.NewAnalysisRepository(rdb, cfg.Redis.RecordTTL, attempts)
		return &Store{Repo: repo, Driver: "redis", ping: repo.Check, close: rdb.Close}, nil
	case "memory":
		repo := memory.NewAnalysisRepository()
		repo.Attempts = attempts
		return &Store{Repo: repo, Driver: "memory"}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func sqlStore(driver string, conn *sql.DB, repo domain.Repository, migrate func(context.Context) error) *Store {
	return &Store{
		Repo:    repo,
		Driver:  driver,
		migrate: migrate,
		ping:    conn.PingContext,
		close:   conn.Close,
	}
}
