// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Drive Module зависит только от PostgreSQL: записи файлов и, при
// DM_BLOB_BACKEND=postgres, содержимое объектов. Файловое хранилище
// локально и отдельной зависимостью не считается.
//
// Метрики публикуются на /metrics:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthOptions — параметры мониторинга зависимостей.
type DephealthOptions struct {
	// ServiceID — имя вершины графа (например, "drive-module")
	ServiceID string
	// Group — имя группы в метриках (DM_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool)
	DB *sql.DB
	// PGConnURL — URL PostgreSQL, используется только для лейблов
	PGConnURL     string
	CheckInterval time.Duration
	// IsEntry добавляет лейбл isentry=yes
	IsEntry bool
}

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис с глобальным Prometheus registry.
// Проверка PostgreSQL идёт через пул соединений сервиса, поэтому
// исчерпание пула тоже видно в метриках.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(opts, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным registerer.
func NewDephealthServiceWithRegisterer(
	opts DephealthOptions,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(opts, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	opts DephealthOptions,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	dh, err := dephealth.New(opts.ServiceID, opts.Group, dephealthOptions(opts, logger, extraOpts...)...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// postgresDependencyOptions собирает опции зависимости PostgreSQL.
func postgresDependencyOptions(opts DephealthOptions) []dephealth.DependencyOption {
	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(opts.PGConnURL),
		dephealth.CheckInterval(opts.CheckInterval),
		dephealth.Critical(true),
	}
	if opts.IsEntry {
		depOpts = append(depOpts, dephealth.WithLabel("isentry", "yes"))
	}
	return depOpts
}

func dephealthOptions(opts DephealthOptions, logger *slog.Logger, extra ...dephealth.Option) []dephealth.Option {
	all := make([]dephealth.Option, 0, 2+len(extra))
	all = append(all,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(opts.DB)), postgresDependencyOptions(opts)...),
	)
	return append(all, extra...)
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — "dependency:host:port"; до первой проверки записи нет.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady сводит Health() в статус для /health/ready.
// Отказ зависимости даёт "degraded": доступность PostgreSQL решает ping пула.
func (ds *DephealthService) CheckReady() (status, message string) {
	health := ds.Health()
	if len(health) == 0 {
		return "degraded", "проверки зависимостей ещё не выполнялись"
	}

	var failed []string
	for key, ok := range health {
		if !ok {
			failed = append(failed, key)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return "degraded", "недоступны: " + strings.Join(failed, ", ")
	}
	return "ok", ""
}
