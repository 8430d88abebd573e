package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandgold-errcache/internal/errorcache"
	"grandgold-errcache/internal/handler"
	"grandgold-errcache/internal/middleware"
	"grandgold-errcache/internal/service"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cache := errorcache.New(errorcache.NewMemoryStore())
	svc := service.NewSuppressionService(cache, nil, nil, true)

	return New(Config{
		Handler:        handler.New(svc, "errcache", "test"),
		ErrorsHandler:  handler.NewErrorsHandler(svc),
		AdminHandler:   handler.NewAdminHandler(svc, nil, "memory", "none"),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{"k1"}}),
	})
}

func do(r http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t)
	op := `{"operation":"GetOrders","error":"boom"}`

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/v1/errors/report", op, http.StatusOK},
		{http.MethodPost, "/api/v1/errors/retry/check", op, http.StatusOK},
		{http.MethodPost, "/api/v1/errors/retry", op, http.StatusOK},
		{http.MethodPost, "/api/v1/errors/inspect", op, http.StatusOK},
		{http.MethodPost, "/api/v1/errors/dismiss", op, http.StatusOK},
		{http.MethodPost, "/api/v1/errors/clear", op, http.StatusOK},
		{http.MethodDelete, "/api/v1/errors", "", http.StatusOK},
		{http.MethodGet, "/api/v1/errors/log", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/admin/stats", "", http.StatusOK},
		{http.MethodPost, "/api/v1/admin/cleanup", "", http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		rec := do(r, tc.method, tc.path, tc.body, "k1")
		assert.Equal(t, tc.want, rec.Code, "%s %s: %s", tc.method, tc.path, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestRoutesRequireAPIKey(t *testing.T) {
	r := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/admin/stats", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/status", "", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	do(r, http.MethodPost, "/api/v1/errors/report", `{"operation":"GetOrders","error":"boom"}`, "k1")

	rec := do(r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "errcache_decisions_total")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/errors/report"`)
}
