// metrics.go — Prometheus HTTP метрики для Drive Module.
// Регистрирует метрики: dm_http_requests_total, dm_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// statusAborted — лейбл статуса для ответов, оборванных после начала передачи.
const statusAborted = "aborted"

// HTTP метрики Drive Module
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Drive Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Drive Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// routePrefix — префикс endpoint-а доставки (DM_ROUTE_PREFIX).
// Оборванные ответы (panic http.ErrAbortHandler) учитываются со статусом aborted.
func MetricsMiddleware(routePrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path, routePrefix)

			wrapped := newMetricsResponseWriter(w)
			status := ""
			defer func() {
				rec := recover()
				if rec != nil {
					status = statusAborted
				}
				httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
				httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(wrapped, r)
			status = strconv.Itoa(wrapped.statusCode)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет идентификатор файла в пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /files/a1b2c3d4-...                 → /files/{id}
// /api/v1/files/a1b2c3d4-.../urls     → /api/v1/files/{id}/urls
// Прочие пути (в том числе мусорные) схлопываются в "other".
func normalizePath(path, routePrefix string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics":
		return path
	}

	const apiPrefix = "/api/v1/files/"
	if rest, ok := strings.CutPrefix(path, apiPrefix); ok {
		if _, suffix, found := strings.Cut(rest, "/"); found && suffix == "urls" {
			return apiPrefix + "{id}/urls"
		}
		return "other"
	}

	if rest, ok := strings.CutPrefix(path, routePrefix+"/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return routePrefix + "/{id}"
	}

	return "other"
}
