// delivery.go — обработчик GET {DM_ROUTE_PREFIX}/{file_id}.
// Отображение терминальных состояний pipeline доставки в HTTP:
// 200 поток, 400 некорректный id, 403 ключ доступа, 404/410 PNG-заглушка,
// 204 external-файл, 500 ошибка. Ошибка после начала передачи обрывает соединение.
package handlers

import (
	_ "embed"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/drive-module/internal/api/errors"
	"github.com/bigkaa/goartstore/drive-module/internal/service"
)

// HeaderRepresentation — заголовок с фактически отданным представлением
// (original, webpublic, thumbnail). Позволяет клиенту отличить fallback.
const HeaderRepresentation = "X-Drive-Representation"

var (
	//go:embed assets/dummy.png
	dummyPNG []byte
	//go:embed assets/tombstone.png
	tombstonePNG []byte
)

// DeliverFile — реализация GET/HEAD {DM_ROUTE_PREFIX}/{file_id}.
func (h *APIHandler) DeliverFile(w http.ResponseWriter, r *http.Request) {
	res := h.delivery.Deliver(r.Context(), chi.URLParam(r, "file_id"), service.ParseDeliveryQuery(r.URL.Query()))

	switch res.Outcome {
	case service.OutcomeOK:
		h.writeStream(w, r, res)
	case service.OutcomeInvalidID:
		apierrors.ValidationError(w, "Некорректный идентификатор файла")
	case service.OutcomeNotFound:
		writePlaceholder(w, http.StatusNotFound, dummyPNG)
	case service.OutcomeGone:
		writePlaceholder(w, http.StatusGone, tombstonePNG)
	case service.OutcomeNoContent:
		w.WriteHeader(http.StatusNoContent)
	case service.OutcomeForbidden:
		apierrors.Forbidden(w, "Доступ к оригиналу файла запрещён")
	default:
		apierrors.InternalError(w, "Внутренняя ошибка при доставке файла")
	}
}

// writeStream отдаёт поток результата.
// Статус 200 уходит вместе с первыми байтами, поэтому ошибка до первой записи
// ещё может стать ответом 500. После начала передачи соединение обрывается.
func (h *APIHandler) writeStream(w http.ResponseWriter, r *http.Request, res *service.DeliveryResult) {
	hdr := w.Header()
	hdr.Set("Content-Type", res.ContentType)
	hdr.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set(HeaderRepresentation, string(res.Served))
	if res.Attachment {
		hdr.Set("Content-Disposition", "attachment")
	}

	if r.Method == http.MethodHead {
		h.delivery.Discard(res)
		w.WriteHeader(http.StatusOK)
		return
	}

	n, err := h.delivery.Stream(r.Context(), w, res)
	if err == nil {
		return
	}
	if n == 0 && r.Context().Err() == nil {
		for _, k := range []string{"Content-Length", "Content-Disposition", "X-Content-Type-Options", HeaderRepresentation} {
			hdr.Del(k)
		}
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}

	// Частичный ответ не должен выглядеть завершённым
	panic(http.ErrAbortHandler)
}

// writePlaceholder отдаёт PNG-заглушку со статусом status.
func writePlaceholder(w http.ResponseWriter, status int, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(status)
	_, _ = w.Write(img)
}
