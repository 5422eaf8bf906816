package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/subcategories/{code}/underwriters", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/subcategories/{code}/underwriters", "418"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subcategories/PRIVATE_TOR/underwriters", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/subcategories/{code}/underwriters", "418"))
	assert.Equal(t, before+1, after)
}

func TestRoutePattern_FallsBackToPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.Equal(t, "/health", RoutePattern(req))
}
