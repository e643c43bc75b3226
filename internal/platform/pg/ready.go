package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"jobkeeper/pkg/retry"
)

// WaitForDB ожидает доступности базы данных с экспоненциальной задержкой.
// Используется при старте процесса, пока Postgres поднимается рядом.
func WaitForDB(ctx context.Context, dsn string, maxAttempts int) error {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 15 * time.Second

	return retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		return pingDatabase(ctx, dsn, 5*time.Second)
	}, func(err error) bool {
		// До исчерпания попыток повторяем любую ошибку подключения
		return true
	})
}

// HealthCheckPool выполняет проверку здоровья существующего пула подключений.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pool ping failed: %w", err)
	}

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}

	return nil
}

// pingDatabase выполняет пинг БД с созданием временного подключения.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	return nil
}
