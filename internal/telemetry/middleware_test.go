package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/stretchr/testify/assert"
)

func TestHTTPLogging_LevelsByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{name: "server error", status: http.StatusInternalServerError, level: `"level":"ERROR"`},
		{name: "client error", status: http.StatusNotFound, level: `"level":"WARN"`},
		{name: "success", status: http.StatusOK, level: `"level":"DEBUG"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			h := HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req = req.WithContext(logctx.WithLogger(context.Background(), logger))

			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), `"path":"/status"`)
		})
	}
}

func TestHTTPMiddleware_DisabledPassesThrough(t *testing.T) {
	m := NewHTTPMiddleware(&Telemetry{})

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	_, _ = rw.Write([]byte("hello"))
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.status, "status is fixed by the first write")
	assert.Equal(t, int64(5), rw.bytesWritten)
	assert.Same(t, rw, wrapResponseWriter(rw))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(100))
}
