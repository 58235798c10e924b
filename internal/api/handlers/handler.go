// handler.go — основной обработчик API Drive Module.
// Объединяет health, endpoint доставки и API URL Resolver.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/drive-module/internal/service"
)

// APIHandler — основной обработчик API Drive Module.
type APIHandler struct {
	health   *HealthHandler
	delivery *service.DeliveryService
	urls     *service.URLService
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	delivery *service.DeliveryService,
	urls *service.URLService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		delivery: delivery,
		urls:     urls,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// RegisterRoutes регистрирует маршруты в router.
// routePrefix — префикс endpoint-а доставки (DM_ROUTE_PREFIX, например /files).
func (h *APIHandler) RegisterRoutes(r chi.Router, routePrefix string) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Get("/api/v1/files/{file_id}/urls", h.GetFileURLs)

	r.Get(routePrefix+"/{file_id}", h.DeliverFile)
	r.Head(routePrefix+"/{file_id}", h.DeliverFile)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
