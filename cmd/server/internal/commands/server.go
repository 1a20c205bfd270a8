package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gin-gonic/gin"
	"github.com/heraerp/hera-engine/internal/api"
	"github.com/heraerp/hera-engine/internal/engine"
	"github.com/heraerp/hera-engine/internal/logger"
	"github.com/heraerp/hera-engine/internal/store"
	memorystore "github.com/heraerp/hera-engine/internal/store/memory"
	postgresstore "github.com/heraerp/hera-engine/internal/store/postgres"
	"github.com/heraerp/hera-engine/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

type ServerCmd struct {
	Listen string `help:"HTTP server listen address (default 0.0.0.0:8080)" env:"HERA_LISTEN"`
	Config string `help:"path to YAML config file" default:"" env:"HERA_CONFIG"`

	Tracing bool `help:"enable tracing" default:"false" env:"HERA_TRACING"`

	StoreType     string             `help:"store type, memory or postgres (default memory)" env:"HERA_STORE_TYPE"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"HERA_POSTGRES_AUTO_MIGRATE"`

	ConnectMaxElapsed int32 `help:"maximum seconds to retry the initial database connection" default:"60"`
}

// fileConfig is the optional YAML config file. Flags win over file values.
type fileConfig struct {
	Listen   string                   `yaml:"listen"`
	Tracing  bool                     `yaml:"tracing"`
	Store    string                   `yaml:"store"`
	Postgres postgresstore.PoolConfig `yaml:"postgres"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	poolCfg := &postgresstore.PoolConfig{
		ConnString:      c.PostgresStore.ConnString,
		MaxConns:        c.PostgresStore.MaxConns,
		MinConns:        c.PostgresStore.MinConns,
		MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
		MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		AutoMigrate:     c.PostgresStore.AutoMigrate,
	}

	var cfg *fileConfig
	if c.Config != "" {
		var err error
		cfg, err = loadConfig(c.Config)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := c.resolveConfig(cfg, poolCfg); err != nil {
		return err
	}

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, "hera-engine", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	var stores store.Stores

	switch c.StoreType {
	case "postgres":
		pool, err := connectWithRetry(ctx, poolCfg, c.PostgresStore.ConnectMaxElapsed)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		stores = postgresstore.NewStores(pool)
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		stores = memorystore.NewStores()
		log.Info().Msg("Using in-memory stores")
	}

	eng := engine.New(stores)

	if !globals.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.Requests(log), gin.Recovery())
	api.NewHandler(eng).RegisterRoutes(router)

	srv := configureHTTPServer(c.Listen, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Str("store", c.StoreType).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// connectWithRetry keeps trying the initial database connection so the
// server survives a database that comes up after it does.
func connectWithRetry(ctx context.Context, cfg *postgresstore.PoolConfig, maxElapsedSeconds int32) (*pgxpool.Pool, error) {
	operation := func() (*pgxpool.Pool, error) {
		pool, err := postgresstore.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pool, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(time.Duration(maxElapsedSeconds)*time.Second),
	)
}

// resolveConfig applies the precedence flags > config file > built-in
// defaults, then validates the store type.
func (c *ServerCmd) resolveConfig(cfg *fileConfig, poolCfg *postgresstore.PoolConfig) error {
	if cfg != nil {
		if c.Listen == "" {
			c.Listen = cfg.Listen
		}
		if c.StoreType == "" {
			c.StoreType = cfg.Store
		}
		if !c.Tracing {
			c.Tracing = cfg.Tracing
		}
		if poolCfg.ConnString == "" {
			*poolCfg = cfg.Postgres
		}
	}

	if c.Listen == "" {
		c.Listen = "0.0.0.0:8080"
	}
	if c.StoreType == "" {
		c.StoreType = "memory"
	}

	switch c.StoreType {
	case "memory", "postgres":
		return nil
	default:
		return fmt.Errorf("unknown store type %q", c.StoreType)
	}
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
