// files.go — обработчик GET /api/v1/files/{file_id}/urls.
// URL доставки файла, вычисленные URL Resolver. URL оригинала не отдаётся:
// он содержит ключ доступа.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/drive-module/internal/api/errors"
	"github.com/bigkaa/goartstore/drive-module/internal/service"
)

// fileURLsResponse — тело ответа GET /api/v1/files/{file_id}/urls.
type fileURLsResponse struct {
	FileID       string `json:"file_id"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// GetFileURLs — реализация GET /api/v1/files/{file_id}/urls.
func (h *APIHandler) GetFileURLs(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")

	urls, err := h.urls.Resolve(r.Context(), fileID, false)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidIdentifier):
			apierrors.ValidationError(w, "Некорректный идентификатор файла")
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Файл не найден")
		case errors.Is(err, service.ErrGone):
			apierrors.Gone(w, "Файл удалён")
		default:
			h.logger.Error("Ошибка вычисления URL файла",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Внутренняя ошибка при вычислении URL файла")
		}
		return
	}

	writeJSON(w, http.StatusOK, fileURLsResponse{
		FileID:       urls.FileID,
		URL:          urls.URL,
		ThumbnailURL: urls.ThumbnailURL,
	})
}
