package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/drive-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/drive-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/drive-module/internal/config"
	"github.com/bigkaa/goartstore/drive-module/internal/database"
	"github.com/bigkaa/goartstore/drive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/drive-module/internal/repository"
	"github.com/bigkaa/goartstore/drive-module/internal/server"
	"github.com/bigkaa/goartstore/drive-module/internal/service"
	"github.com/bigkaa/goartstore/drive-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/drive-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/drive-module/internal/storage/pgstore"
	"github.com/bigkaa/goartstore/drive-module/internal/urlresolver"
)

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "drive-module",
		Short:         "Drive Module — выдача файлов drive",
		Long:          "Drive Module вычисляет URL файлов drive и отдаёт их содержимое по HTTP.",
		Version:       config.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервер",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции БД и выйти",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return database.Migrate(cfg, logger)
		},
	}
}

func newURLCommand() *cobra.Command {
	var thumbnail, original bool

	cmd := &cobra.Command{
		Use:   "url <file_id>",
		Short: "Показать URL доставки файла",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			pool, err := database.Connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			urlSvc := service.NewURLService(
				repository.NewFileRepository(pool),
				service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL),
				urlresolver.New(cfg.DriveURL),
				logger,
			)
			urls, err := urlSvc.Resolve(ctx, args[0], original)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			resolved := urls.URL
			if thumbnail {
				resolved = urls.ThumbnailURL
			}
			if resolved == "" {
				return fmt.Errorf("URL файла %s не определён", urls.FileID)
			}
			fmt.Fprintln(out, resolved)
			if original {
				fmt.Fprintln(out, urls.OriginalURL)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&thumbnail, "thumbnail", false, "URL миниатюры вместо основного URL")
	cmd.Flags().BoolVar(&original, "original", false, "дополнительно вывести URL оригинала (содержит ключ доступа)")
	return cmd
}

func newPutCommand() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "put <bucket> <object_id> <path>",
		Short: "Загрузить объект в blob store",
		Long:  "Загружает файл в bucket original, webpublic или thumbnail настроенного blob store.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			bucket, err := blobstore.ParseBucket(args[0])
			if err != nil {
				return err
			}
			objectID, err := model.ParseFileID(args[1])
			if err != nil {
				return fmt.Errorf("идентификатор объекта: %w", err)
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			var pool *pgxpool.Pool
			if cfg.BlobBackend == config.BlobBackendPostgres {
				pool, err = database.Connect(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer pool.Close()
			}
			blobs, err := openBlobStore(cfg, pool)
			if err != nil {
				return err
			}

			f, err := os.Open(args[2])
			if err != nil {
				return fmt.Errorf("открытие файла: %w", err)
			}
			defer f.Close()

			size, err := blobs.Put(ctx, bucket, objectID, contentType, f)
			if err != nil {
				return err
			}
			logger.Info("Объект загружен",
				slog.String("bucket", string(bucket)),
				slog.String("object_id", objectID),
				slog.Int64("size", size),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "application/octet-stream", "MIME-тип объекта")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
		},
	}
}

// runServe поднимает все зависимости и блокируется до завершения сервера.
func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Конфигурация и логгер
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Drive Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("route_prefix", cfg.RoutePrefix),
		slog.String("blob_backend", cfg.BlobBackend),
	)

	if os.Getenv("DM_DEPHEALTH_GROUP") == "" {
		logger.Warn("DM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 2. Миграции и подключение к PostgreSQL
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 3. Blob store
	blobs, err := openBlobStore(cfg, pool)
	if err != nil {
		return err
	}

	// 4. Сервисы
	fileRepo := repository.NewFileRepository(pool)
	cache := service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL)
	deliverySvc := service.NewDeliveryService(fileRepo, cache, blobs, logger)
	urlSvc := service.NewURLService(fileRepo, cache, urlresolver.New(cfg.DriveURL), logger)

	// 5. topologymetrics
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthOptions{
		ServiceID:     "drive-module",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PGConnURL:     cfg.DatabaseURL("postgres"),
		CheckInterval: cfg.DephealthCheckInterval,
		IsEntry:       cfg.DephealthIsEntry,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	}

	// 6. HTTP-сервер
	var blobChecker handlers.ReadinessChecker
	if fsStore, ok := blobs.(*filestore.FileStore); ok {
		blobChecker = fsStore
	}
	var depChecker handlers.ReadinessChecker
	if dephealthSvc != nil {
		depChecker = dephealthSvc
	}
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), blobChecker, depChecker)
	apiHandler := handlers.NewAPIHandler(healthHandler, deliverySvc, urlSvc, logger)
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(cfg.RoutePrefix),
		middleware.RequestLogger(logger),
	)

	runErr := srv.Run()

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if runErr != nil {
		return fmt.Errorf("сервер: %w", runErr)
	}

	logger.Info("Drive Module остановлен")
	return nil
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	return cfg, config.SetupLogger(cfg), nil
}

// openBlobStore выбирает реализацию blob store по DM_BLOB_BACKEND.
// pool используется только postgres-бэкендом.
func openBlobStore(cfg *config.Config, pool *pgxpool.Pool) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendPostgres:
		if pool == nil {
			return nil, errors.New("postgres blob store: нет подключения к БД")
		}
		return pgstore.New(pool, cfg.BlobChunkSize), nil
	case config.BlobBackendFS:
		store, err := filestore.New(cfg.BlobDataDir, cfg.BlobChunkSize)
		if err != nil {
			return nil, fmt.Errorf("файловый blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("неизвестный blob backend %q", cfg.BlobBackend)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
