package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/api/middleware"
)

func serveRequestID(t *testing.T, incoming string) (ctxID, headerID string) {
	t.Helper()
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/vessels/mv-aurora/weather-route", http.NoBody)
	if incoming != "" {
		req.Header.Set(middleware.RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(middleware.RequestIDHeader)
}

func TestRequestID_MintsWhenAbsent(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "")

	require.NotEmpty(t, ctxID)
	assert.Equal(t, ctxID, headerID)
	assert.True(t, strings.HasPrefix(ctxID, "wr_"), ctxID)
	assert.Len(t, ctxID, len("wr_")+32)
}

func TestRequestID_IncomingHeader(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"plain", "client-request-123", true},
		{"gateway style", "gw:1f2e.3d_4c", true},
		{"max length", strings.Repeat("a", 128), true},
		{"too long", strings.Repeat("a", 129), false},
		{"whitespace", "bad id", false},
		{"header injection", "id\r\nX-Evil: 1", false},
		{"non ascii", "näkki", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctxID, headerID := serveRequestID(t, tt.incoming)
			assert.Equal(t, ctxID, headerID)
			if tt.keep {
				assert.Equal(t, tt.incoming, ctxID)
			} else {
				assert.NotEqual(t, tt.incoming, ctxID)
				assert.True(t, strings.HasPrefix(ctxID, "wr_"))
			}
		})
	}
}

func TestNewRequestID_UniqueAndOrdered(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 200; i++ {
		id := middleware.NewRequestID()
		assert.False(t, seen[id], "duplicate request ID %s", id)
		seen[id] = true
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestGetRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))

	ctx := middleware.WithRequestID(req.Context(), "wr_fixed")
	assert.Equal(t, "wr_fixed", middleware.GetRequestID(ctx))
}
