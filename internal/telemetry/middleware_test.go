package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRouter(mw func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/v1/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return r
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	t.Parallel()

	t.Run("nil metrics pass through", func(t *testing.T) {
		t.Parallel()

		mw, err := MetricsMiddleware(nil)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		newRouter(mw).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/items/1", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("records requests by route pattern", func(t *testing.T) {
		t.Parallel()

		reader, mp := newTestMeterProvider(t)
		mw, err := MetricsMiddleware(mp)
		require.NoError(t, err)
		router := newRouter(mw)

		for _, path := range []string{"/v1/items/1", "/v1/items/2", "/broken"} {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		}

		total := collectMetric(t, reader, HTTPMetricsMeterName, "content_mirror_http_requests_total")
		sum, ok := total.Data.(metricdata.Sum[int64])
		require.True(t, ok)

		byRoute := map[string]int64{}
		for _, dp := range sum.DataPoints {
			route, _ := dp.Attributes.Value("route")
			byRoute[route.AsString()] += dp.Value
		}
		assert.Equal(t, map[string]int64{"/v1/items/{id}": 2, "/broken": 1}, byRoute)
	})
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("nil provider passes through", func(t *testing.T) {
		t.Parallel()

		rr := httptest.NewRecorder()
		newRouter(TracingMiddleware(nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/items/1", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("names spans after the route and marks errors", func(t *testing.T) {
		t.Parallel()

		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

		router := newRouter(TracingMiddleware(tp))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/items/42", nil))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		assert.Equal(t, "GET /v1/items/{id}", spans[0].Name)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
		assert.Contains(t, spans[0].Attributes, attribute.String("http.route", "/v1/items/{id}"))

		assert.Equal(t, "GET /broken", spans[1].Name)
		assert.Equal(t, codes.Error, spans[1].Status.Code)
	})

	t.Run("unrouted requests use a constant route", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
		assert.Equal(t, unknownRoute, routePattern(req))
	})
}
