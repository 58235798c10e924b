package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestNormalizePath проверяет нормализацию путей для лейблов метрик.
func TestNormalizePath(t *testing.T) {
	const id = "9c1d2e3f-4a5b-4c6d-8e7f-0a1b2c3d4e5f"

	tests := []struct {
		path   string
		prefix string
		want   string
	}{
		{"/health/live", "/files", "/health/live"},
		{"/metrics", "/files", "/metrics"},
		{"/files/" + id, "/files", "/files/{id}"},
		{"/files/not-an-id", "/files", "/files/{id}"},
		{"/drive/" + id, "/drive", "/drive/{id}"},
		{"/files/", "/files", "other"},
		{"/files/a/b", "/files", "other"},
		{"/api/v1/files/" + id + "/urls", "/files", "/api/v1/files/{id}/urls"},
		{"/api/v1/files/" + id, "/files", "other"},
		{"/random/scan.php", "/files", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path, tt.prefix); got != tt.want {
			t.Errorf("normalizePath(%q, %q) = %q, ожидался %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

// TestRequestLogger_NoQueryInLog проверяет, что query-строка не попадает в лог.
func TestRequestLogger_NoQueryInLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	req := httptest.NewRequest(http.MethodGet, "/files/x?original=top-secret", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := buf.String()
	if strings.Contains(out, "top-secret") {
		t.Errorf("лог содержит ключ доступа: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("ожидался уровень WARN для 403: %s", out)
	}
	if !strings.Contains(out, `"status":403`) {
		t.Errorf("ожидался status 403: %s", out)
	}
}

// TestRequestLogger_Abort проверяет логирование и проброс panic http.ErrAbortHandler.
func TestRequestLogger_Abort(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger)(MetricsMiddleware("/files")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("partial"))
		panic(http.ErrAbortHandler)
	})))

	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Fatalf("recover() = %v, ожидался http.ErrAbortHandler", rec)
		}
		out := buf.String()
		if !strings.Contains(out, `"aborted":true`) || !strings.Contains(out, `"level":"ERROR"`) {
			t.Errorf("ожидалась ERROR-запись с aborted=true: %s", out)
		}
		if !strings.Contains(out, `"bytes":7`) {
			t.Errorf("ожидался bytes=7: %s", out)
		}
	}()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/files/x", nil))
}
