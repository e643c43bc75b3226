// Package app assembles the process-level wiring shared by the server and
// reconciler binaries: configuration, logging, database and broker access.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"jobkeeper/internal/audit"
	"jobkeeper/internal/broker"
	"jobkeeper/internal/catalog"
	"jobkeeper/internal/config"
	"jobkeeper/internal/platform/logger"
	"jobkeeper/internal/platform/pg"
	platformredis "jobkeeper/internal/platform/redis"
	"jobkeeper/internal/shared"
	"jobkeeper/migrations"
)

// startupAttempts bounds how long a starting process waits for its
// dependencies before giving up.
const startupAttempts = 10

// App holds everything a fully bootstrapped process has at hand.
type App struct {
	Cfg     config.Config
	Log     *slog.Logger
	Pool    *pgxpool.Pool
	Jobs    *catalog.Service
	Repo    catalog.Repository
	Audit   audit.Store
	Gateway *broker.RedisGateway
}

// Bootstrap loads configuration, waits for Postgres and Redis, applies
// migrations and wires the domain layers. appName shows up in Postgres
// logs and in every log line.
func Bootstrap(ctx context.Context, appName string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, shared.Wrap(err, "load config")
	}

	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          appName,
	})

	dsn := pg.BuildDSN(pg.DSNConfig{
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		User:            cfg.DB.User,
		Password:        cfg.DB.Password,
		Database:        cfg.DB.Name,
		SSLMode:         cfg.DB.SSLMode,
		ApplicationName: appName,
	})
	if err := pg.WaitForDB(ctx, dsn, startupAttempts); err != nil {
		return nil, shared.Wrap(err, "wait for postgres")
	}

	info, err := pg.ApplyMigrationsFromFS(dsn, migrations.FS, ".")
	if err != nil {
		return nil, shared.Wrap(err, "apply migrations")
	}
	if info.Applied {
		log.Info("applied migrations", "from", info.CurrentVersion, "to", info.FinalVersion)
	}

	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, shared.Wrap(err, "open pool")
	}

	redisOpts := platformredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if err := platformredis.WaitForRedis(ctx, redisOpts, startupAttempts); err != nil {
		pool.Close()
		return nil, shared.Wrap(err, "wait for redis")
	}

	runner := pg.NewTxRunner(pool)
	repo := catalog.NewPGRepository(runner)
	gateway := broker.NewRedisGateway(redisOpts, log)

	return &App{
		Cfg:     cfg,
		Log:     log,
		Pool:    pool,
		Jobs:    catalog.NewService(repo, gateway, cfg.Broker.PageSize, log),
		Repo:    repo,
		Audit:   audit.NewPGStore(runner),
		Gateway: gateway,
	}, nil
}

// Close releases the pool and flushes the log file.
func (a *App) Close() {
	a.Pool.Close()
	_ = logger.Close(a.Log)
}
