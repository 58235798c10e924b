package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"DM_DB_HOST":     "localhost",
		"DM_DB_NAME":     "drive",
		"DM_DB_USER":     "drive",
		"DM_DB_PASSWORD": "secret",
		"DM_DRIVE_URL":   "https://example.com/files/",
		"DM_ENV_FILE":    filepath.Join(os.TempDir(), "drive-module-no-such.env"),
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DriveURL != "https://example.com/files" {
		t.Errorf("DriveURL = %q, ожидается без trailing slash", cfg.DriveURL)
	}
	if cfg.RoutePrefix != "/files" {
		t.Errorf("RoutePrefix = %q, ожидается /files", cfg.RoutePrefix)
	}
	if cfg.BlobBackend != BlobBackendPostgres {
		t.Errorf("BlobBackend = %q, ожидается postgres", cfg.BlobBackend)
	}
	if cfg.BlobChunkSize != 261120 {
		t.Errorf("BlobChunkSize = %d, ожидается 261120", cfg.BlobChunkSize)
	}
	if cfg.CacheMaxSize != 10000 {
		t.Errorf("CacheMaxSize = %d, ожидается 10000", cfg.CacheMaxSize)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, ожидается 30s", cfg.CacheTTL)
	}
	if cfg.HTTPWriteTimeout != 0 {
		t.Errorf("HTTPWriteTimeout = %v, ожидается 0", cfg.HTTPWriteTimeout)
	}
	if cfg.DBPort != 5432 || cfg.DBSSLMode != "disable" {
		t.Errorf("DBPort/DBSSLMode = %d/%q, ожидается 5432/disable", cfg.DBPort, cfg.DBSSLMode)
	}
	if cfg.DephealthGroup != "drive" {
		t.Errorf("DephealthGroup = %q, ожидается drive", cfg.DephealthGroup)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if cfg.LogFile != "" {
		t.Errorf("LogFile = %q, ожидается пустая строка", cfg.LogFile)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DM_DB_HOST", "DM_DB_NAME", "DM_DB_USER", "DM_DB_PASSWORD", "DM_DRIVE_URL"} {
		t.Run(key, func(t *testing.T) {
			envs := minimalEnvs()
			envs[key] = ""
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatalf("ожидалась ошибка при отсутствии %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("ошибка %q не содержит имя переменной %s", err, key)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port не число", "DM_PORT", "abc"},
		{"уровень логов", "DM_LOG_LEVEL", "verbose"},
		{"формат логов", "DM_LOG_FORMAT", "xml"},
		{"ssl mode", "DM_DB_SSL_MODE", "prefer"},
		{"относительный drive url", "DM_DRIVE_URL", "/files"},
		{"route prefix на api", "DM_ROUTE_PREFIX", "/api/v1"},
		{"route prefix корень", "DM_ROUTE_PREFIX", "/"},
		{"blob backend", "DM_BLOB_BACKEND", "s3"},
		{"chunk size мал", "DM_BLOB_CHUNK_SIZE", "100"},
		{"cache size ноль", "DM_CACHE_MAX_SIZE", "0"},
		{"cache ttl отрицательный", "DM_CACHE_TTL", "-1s"},
		{"длительность", "DM_DEPHEALTH_CHECK_INTERVAL", "15"},
		{"isentry", "DEPHEALTH_ISENTRY", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.val
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_RoutePrefixNormalized(t *testing.T) {
	envs := minimalEnvs()
	envs["DM_ROUTE_PREFIX"] = "drive/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.RoutePrefix != "/drive" {
		t.Errorf("RoutePrefix = %q, ожидается /drive", cfg.RoutePrefix)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "DM_PORT=8045\nDM_BLOB_BACKEND=fs\nDM_DB_HOST=from-file\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("запись .env: %v", err)
	}

	envs := minimalEnvs()
	envs["DM_ENV_FILE"] = envFile
	setEnvs(t, envs)
	// Переменные, которые задаст godotenv, очищаем после теста
	t.Setenv("DM_PORT", "")
	t.Setenv("DM_BLOB_BACKEND", "")
	os.Unsetenv("DM_PORT")
	os.Unsetenv("DM_BLOB_BACKEND")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Port != 8045 {
		t.Errorf("Port = %d, ожидается 8045 из .env", cfg.Port)
	}
	if cfg.BlobBackend != BlobBackendFS {
		t.Errorf("BlobBackend = %q, ожидается fs из .env", cfg.BlobBackend)
	}
	// Уже заданная переменная окружения имеет приоритет над .env
	if cfg.DBHost != "localhost" {
		t.Errorf("DBHost = %q, ожидается localhost", cfg.DBHost)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5433, DBName: "drive", DBUser: "u", DBPassword: "p", DBSSLMode: "require",
	}
	want := "host=db port=5433 dbname=drive user=u password=p sslmode=require"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
}

func TestDatabaseURL_EscapesPassword(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5432, DBName: "drive", DBUser: "u", DBPassword: "p@ss/word", DBSSLMode: "disable",
	}
	want := "pgx5://u:p%40ss%2Fword@db:5432/drive?sslmode=disable"
	if got := cfg.DatabaseURL("pgx5"); got != want {
		t.Errorf("DatabaseURL() = %q, ожидается %q", got, want)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("parseLogLevel(%q) ошибка = %v, ожидалась ошибка: %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, ожидается %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLogger_LogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "drive.log")
	cfg := &Config{
		LogLevel:          slog.LevelInfo,
		LogFormat:         "text",
		LogFile:           logFile,
		LogFileMaxSizeMB:  1,
		LogFileMaxBackups: 1,
	}
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger(cfg)
	logger.Info("проверка файла логов")

	raw, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("файл логов не создан: %v", err)
	}
	if !strings.Contains(string(raw), "проверка файла логов") {
		t.Errorf("файл логов не содержит запись: %q", raw)
	}
}
