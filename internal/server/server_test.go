package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// stubRegistrar регистрирует один маршрут доставки.
type stubRegistrar struct{}

func (stubRegistrar) RegisterRoutes(r chi.Router, routePrefix string) {
	r.Get(routePrefix+"/{file_id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chi.URLParam(r, "file_id")))
	})
}

// TestNewRouter проверяет маршруты, middleware и JSON-ответы для неизвестных путей.
func TestNewRouter(t *testing.T) {
	var called int
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called++
			next.ServeHTTP(w, r)
		})
	}

	router := NewRouter("/drive", stubRegistrar{}, mw)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drive/abc", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "abc" {
		t.Errorf("ответ = %d %q, ожидался 200 abc", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "NOT_FOUND") {
		t.Errorf("ответ = %d %q, ожидался 404 NOT_FOUND", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/drive/abc", nil))
	if rec.Code != http.StatusMethodNotAllowed || !strings.Contains(rec.Body.String(), "METHOD_NOT_ALLOWED") {
		t.Errorf("ответ = %d %q, ожидался 405", rec.Code, rec.Body.String())
	}

	if called != 3 {
		t.Errorf("middleware вызван %d раз, ожидалось 3", called)
	}
}
