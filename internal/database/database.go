// Пакет database — пул PostgreSQL drive-module, встроенные миграции
// схемы drive_files/blob_* и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/drive-module/internal/config"
)

// applicationName видно в pg_stat_activity.
const applicationName = "drive-module"

const readinessTimeout = 3 * time.Second

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect открывает пул и дожидается ответа сервера.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("DSN PostgreSQL: %w", err)
	}
	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("пул PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL %s:%d недоступен: %w", cfg.DBHost, cfg.DBPort, err)
	}

	logger.Info("PostgreSQL подключён",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate доводит схему до последней встроенной версии.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.DatabaseURL("pgx5"))
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	before, _, _ := m.Version()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций: %w", err)
	}

	after, dirty, _ := m.Version()
	if after == before {
		logger.Info("Схема БД актуальна", slog.Uint64("version", uint64(after)))
		return nil
	}
	logger.Info("Схема БД обновлена",
		slog.Uint64("from", uint64(before)),
		slog.Uint64("to", uint64(after)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// ReadinessChecker — компонент "database" в /health/ready.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady проверяет соединение и версию схемы.
// Незавершённая (dirty) миграция — "fail", схема без миграций — "degraded".
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	var (
		version int64
		dirty   bool
	)
	err := c.pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err):
		return "degraded", "миграции не применены"
	default:
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}

	if dirty {
		return "fail", fmt.Sprintf("миграция %d не завершена (dirty)", version)
	}
	return "ok", fmt.Sprintf("схема версии %d", version)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}
