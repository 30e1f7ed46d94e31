package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fundhttp "github.com/auctionfold/fund-reservations/internal/http"
	"github.com/auctionfold/fund-reservations/internal/observability"
)

func TestMetricsMiddlewareLabelsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(fundhttp.MetricsMiddleware)
	r.Get("/v1/reservations/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	path := "/v1/reservations/" + uuid.New().String()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// The counter is labeled with the route pattern, never the raw path:
	// one series per route regardless of how many reservation IDs pass
	// through it.
	pattern := observability.RequestsTotal.WithLabelValues("/v1/reservations/{id}", "200", "GET")
	assert.Equal(t, 1.0, testutil.ToFloat64(pattern))
	raw := observability.RequestsTotal.WithLabelValues(path, "200", "GET")
	assert.Equal(t, 0.0, testutil.ToFloat64(raw))
}
