// Пакет config — загрузка и валидация конфигурации Drive Module
// из переменных окружения (и необязательного .env файла).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые backend-ы blob store.
const (
	BlobBackendPostgres = "postgres"
	BlobBackendFS       = "fs"
)

// Config содержит все параметры конфигурации Drive Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Файл логов (опционально, с ротацией) ---

	// Путь к файлу логов; пустая строка — только stdout
	LogFile string
	// Максимальный размер файла до ротации, МБ
	LogFileMaxSizeMB int
	// Количество хранимых ротированных файлов
	LogFileMaxBackups int
	// Срок хранения ротированных файлов, дни
	LogFileMaxAgeDays int
	// Сжимать ротированные файлы gzip
	LogFileCompress bool

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 0 — без ограничения, отдача больших файлов)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Доставка файлов ---

	// Базовый URL для URL Resolver (например, https://example.com/files)
	DriveURL string
	// Префикс маршрута endpoint доставки (по умолчанию /files)
	RoutePrefix string

	// --- Blob store ---

	// Backend blob store: postgres или fs
	BlobBackend string
	// Директория данных для backend fs
	BlobDataDir string
	// Размер чанка при записи, байт
	BlobChunkSize int

	// --- Кэш метаданных ---

	// Максимальное количество записей в LRU-кэше
	CacheMaxSize int
	// Время жизни записи в кэше
	CacheTTL time.Duration

	// --- Мониторинг зависимостей ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Добавлять лейбл isentry=yes
	DephealthIsEntry bool

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Перед чтением переменных подгружается .env (DM_ENV_FILE), если файл существует;
// уже заданные переменные окружения имеют приоритет.
//
//nolint:gocyclo,cyclop // линейная последовательность разбора переменных
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("DM_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("DM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("DM_PORT: %w", err)
	}

	// DM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DM_LOG_LEVEL: %w", err)
	}

	// DM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Файл логов ---

	cfg.LogFile = getEnvDefault("DM_LOG_FILE", "")

	cfg.LogFileMaxSizeMB, err = getEnvInt("DM_LOG_FILE_MAX_SIZE_MB", 100)
	if err != nil {
		return nil, fmt.Errorf("DM_LOG_FILE_MAX_SIZE_MB: %w", err)
	}
	cfg.LogFileMaxBackups, err = getEnvInt("DM_LOG_FILE_MAX_BACKUPS", 5)
	if err != nil {
		return nil, fmt.Errorf("DM_LOG_FILE_MAX_BACKUPS: %w", err)
	}
	cfg.LogFileMaxAgeDays, err = getEnvInt("DM_LOG_FILE_MAX_AGE_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("DM_LOG_FILE_MAX_AGE_DAYS: %w", err)
	}
	cfg.LogFileCompress, err = getEnvBool("DM_LOG_FILE_COMPRESS", true)
	if err != nil {
		return nil, fmt.Errorf("DM_LOG_FILE_COMPRESS: %w", err)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("DM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("DM_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("DM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("DM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("DM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("DM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("DM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("DM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("DM_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("DM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Доставка файлов ---

	// DM_DRIVE_URL — обязательный, без trailing slash
	driveURL, err := getEnvRequired("DM_DRIVE_URL")
	if err != nil {
		return nil, err
	}
	if u, parseErr := url.Parse(driveURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("DM_DRIVE_URL: ожидается абсолютный URL, получено %q", driveURL)
	}
	cfg.DriveURL = strings.TrimRight(driveURL, "/")

	// DM_ROUTE_PREFIX — префикс маршрута доставки (по умолчанию /files)
	cfg.RoutePrefix = "/" + strings.Trim(getEnvDefault("DM_ROUTE_PREFIX", "/files"), "/")
	if cfg.RoutePrefix == "/" || strings.HasPrefix(cfg.RoutePrefix, "/api/") ||
		cfg.RoutePrefix == "/health" || cfg.RoutePrefix == "/metrics" {
		return nil, fmt.Errorf("DM_ROUTE_PREFIX: префикс %q конфликтует с служебными маршрутами", cfg.RoutePrefix)
	}

	// --- Blob store ---

	cfg.BlobBackend = getEnvDefault("DM_BLOB_BACKEND", BlobBackendPostgres)
	if cfg.BlobBackend != BlobBackendPostgres && cfg.BlobBackend != BlobBackendFS {
		return nil, fmt.Errorf("DM_BLOB_BACKEND: недопустимое значение %q, допустимые: postgres, fs", cfg.BlobBackend)
	}
	cfg.BlobDataDir = getEnvDefault("DM_BLOB_DATA_DIR", "/var/lib/drive-module/blobs")

	cfg.BlobChunkSize, err = getEnvInt("DM_BLOB_CHUNK_SIZE", 261120)
	if err != nil {
		return nil, fmt.Errorf("DM_BLOB_CHUNK_SIZE: %w", err)
	}
	if cfg.BlobChunkSize < 1024 || cfg.BlobChunkSize > 16<<20 {
		return nil, fmt.Errorf("DM_BLOB_CHUNK_SIZE: значение %d вне допустимого диапазона 1024-16777216", cfg.BlobChunkSize)
	}

	// --- Кэш метаданных ---

	cfg.CacheMaxSize, err = getEnvInt("DM_CACHE_MAX_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("DM_CACHE_MAX_SIZE: %w", err)
	}
	if cfg.CacheMaxSize < 1 {
		return nil, fmt.Errorf("DM_CACHE_MAX_SIZE: значение должно быть > 0")
	}
	cfg.CacheTTL, err = getEnvDurationFallback("DM_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("DM_DEPHEALTH_GROUP", "drive")
	cfg.DephealthCheckInterval, err = getEnvDuration("DM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("DM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения с указанной схемой
// (postgres — для dephealth, pgx5 — для golang-migrate).
func (c *Config) DatabaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// При заданном DM_LOG_FILE логи дублируются в файл с ротацией (lumberjack).
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogFileMaxSizeMB,
			MaxBackups: cfg.LogFileMaxBackups,
			MaxAge:     cfg.LogFileMaxAgeDays,
			Compress:   cfg.LogFileCompress,
		})
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает переменные из .env. Отсутствие файла — не ошибка.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("загрузка %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationFallback возвращает time.Duration из переменной окружения.
// Если переменная не задана, используется fallbackVal.
// Если задана — парсится и валидируется (> 0).
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallbackVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
