package restapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pietrosul/MyBusApp/internal/logging"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record), line)
		out = append(out, record)
	}
	return out
}

func TestRequestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success logs at info", http.StatusOK, "INFO"},
		{"client error logs at warn", http.StatusNotFound, "WARN"},
		{"server error logs at error", http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logging.FromContext(r.Context()).Info("inside handler")
				w.WriteHeader(tt.status)
			})
			handler := RequestIDMiddleware(NewRequestLoggingMiddleware(logger)(next))

			req := httptest.NewRequest(http.MethodGet, "/api/lines?key=TEST", nil)
			req.Header.Set(RequestIDHeader, "req-42")
			req.Header.Set("User-Agent", "map-client/1.0")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)

			records := decodeLogLines(t, &buf)
			require.Len(t, records, 2)

			assert.Equal(t, "inside handler", records[0]["msg"])
			assert.Equal(t, "req-42", records[0]["request_id"], "handlers log with the request id")

			access := records[1]
			assert.Equal(t, "http_request", access["msg"])
			assert.Equal(t, tt.level, access["level"])
			assert.Equal(t, "GET", access["method"])
			assert.Equal(t, "/api/lines", access["path"])
			assert.Equal(t, float64(tt.status), access["status"])
			assert.Equal(t, "req-42", access["request_id"])
			assert.Equal(t, "map-client/1.0", access["user_agent"])
			assert.Equal(t, "http_server", access["component"])
			assert.Contains(t, access, "duration_ms")
		})
	}
}

func TestResponseWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	assert.Same(t, rec, wrapped.Unwrap())
	require.NoError(t, http.NewResponseController(wrapped).Flush())
	assert.True(t, rec.Flushed)
}
