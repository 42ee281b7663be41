package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"success", http.StatusOK, "level=INFO"},
		{"client error", http.StatusBadRequest, "level=WARN"},
		{"server error", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			h := chimiddleware.RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("hello"))
			})))

			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=secret-code", nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			line := buf.String()
			assert.Contains(t, line, tt.wantLevel)
			assert.Contains(t, line, "path=/auth/google/callback")
			assert.Contains(t, line, "bytes=5")
			assert.Contains(t, line, "requestId=")
			assert.False(t, strings.Contains(line, `requestId=""`), "request id should be set")
			assert.NotContains(t, line, "secret-code")
		})
	}
}

func TestLogger_DefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Contains(t, buf.String(), "status=200")
}
