// Пакет testutil — общие помощники интеграционных тестов.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/drive-module/internal/config"
	"github.com/bigkaa/goartstore/drive-module/internal/database"
)

// StartPostgres запускает PostgreSQL в контейнере, применяет миграции
// и возвращает пул подключений. Без TEST_INTEGRATION тест пропускается.
func StartPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("drive_test"),
		postgres.WithUsername("drive"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}
	portNum, _ := strconv.Atoi(port.Port())

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     portNum,
		DBName:     "drive_test",
		DBUser:     "drive",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}
