package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/content-mirror/internal/api"
	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirror/mocks"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
	"github.com/stacklok/content-mirror/internal/resolve"
	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
)

func serve(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	// No expectations needed - health check doesn't call the service
	server := api.NewServer(mocks.NewMockService(ctrl))
	rr := serve(t, server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		setupMock      func(*mocks.MockService)
		expectedStatus int
		expectedKey    string
	}{
		{
			name: "synced",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().CheckReadiness(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedKey:    "status",
		},
		{
			name: "no sync round yet",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().CheckReadiness(gomock.Any()).Return(fmt.Errorf("mirror has not completed a sync round"))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedKey:    "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockService(ctrl)
			tt.setupMock(svc)

			rr := serve(t, api.NewServer(svc), http.MethodGet, "/readiness")
			assert.Equal(t, tt.expectedStatus, rr.Code)

			var response map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Contains(t, response, tt.expectedKey)
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	rr := serve(t, api.NewServer(mocks.NewMockService(ctrl)), http.MethodGet, "/version")
	assert.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	for _, key := range []string{"version", "commit", "build_date", "go_version", "platform"} {
		assert.Contains(t, response, key)
	}
}

func TestRecordEndpoints(t *testing.T) {
	t.Parallel()

	entries := []content.Record{
		content.NewEntry("e1", "article", content.Fields{"title": {"en-US": content.ScalarValue("Hello")}}),
	}
	assets := []content.Record{content.NewAsset("a1", content.Fields{})}

	tests := []struct {
		name      string
		path      string
		setupMock func(*mocks.MockService)
		wantIDs   []string
	}{
		{
			name: "entries",
			path: "/v1/entries",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().GetEntries(gomock.Any()).Return(entries, nil)
			},
			wantIDs: []string{"e1"},
		},
		{
			name: "assets",
			path: "/v1/assets",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().GetAssets(gomock.Any()).Return(assets, nil)
			},
			wantIDs: []string{"a1"},
		},
		{
			name: "all",
			path: "/v1/all",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().GetAll(gomock.Any()).Return(append(append([]content.Record{}, entries...), assets...), nil)
			},
			wantIDs: []string{"e1", "a1"},
		},
		{
			name: "empty mirror",
			path: "/v1/entries",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().GetEntries(gomock.Any()).Return(nil, nil)
			},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockService(ctrl)
			tt.setupMock(svc)

			rr := serve(t, api.NewServer(svc), http.MethodGet, tt.path)
			require.Equal(t, http.StatusOK, rr.Code)

			var response struct {
				Items []content.Record `json:"items"`
				Total int              `json:"total"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, len(tt.wantIDs), response.Total)
			assert.Equal(t, tt.wantIDs, content.IDs(response.Items))
		})
	}
}

func TestResolvedEntriesEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	e1 := content.NewEntry("e1", "article", content.Fields{
		"ref": {"en-US": content.LinkValue(content.EntryLink("gone"))},
	})
	resolved, err := resolve.NewResolver().Resolve([]content.Record{e1}, resolve.NewLookupMap([]content.Record{e1}, nil))
	require.NoError(t, err)

	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().GetResolvedEntries(gomock.Any()).Return(resolved, nil)

	rr := serve(t, api.NewServer(svc), http.MethodGet, "/v1/entries/resolved")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"items": [{
			"sys": {"id": "e1", "type": "Entry", "contentType": {"sys": {"type": "Link", "linkType": "ContentType", "id": "article"}}},
			"fields": {"ref": {"en-US": {"sys": {"type": "Link", "linkType": "Entry", "id": "gone"}, "unresolved": "missing"}}}
		}],
		"total": 1
	}`, rr.Body.String())
}

func TestSyncEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Sync(gomock.Any()).Return(&mirrorsync.Result{Cursor: "c2", EntriesUpserted: 2}, nil)

	server := api.NewServer(svc)

	rr := serve(t, server, http.MethodPost, "/v1/sync")
	require.Equal(t, http.StatusOK, rr.Code)

	var result mirrorsync.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "c2", result.Cursor)
	assert.Equal(t, 2, result.EntriesUpserted)

	rr = serve(t, server, http.MethodGet, "/v1/sync")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{
			name:       "upstream failure",
			err:        mirrorerr.Sync("sync", mirrorerr.Upstream("fetch delta", errors.New("connection refused"))),
			wantStatus: http.StatusBadGateway,
			wantKind:   "UPSTREAM_FETCH",
		},
		{
			name:       "store failure",
			err:        mirrorerr.Sync("sync", mirrorerr.Store("apply delta", errors.New("disk full"))),
			wantStatus: http.StatusServiceUnavailable,
			wantKind:   "STORE",
		},
		{
			name:       "resolution failure",
			err:        mirrorerr.Resolution("resolve", errors.New("link id is required")),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "RESOLUTION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockService(ctrl)
			svc.EXPECT().GetResolvedEntries(gomock.Any()).Return(nil, tt.err)

			rr := serve(t, api.NewServer(svc), http.MethodGet, "/v1/entries/resolved")
			assert.Equal(t, tt.wantStatus, rr.Code)

			var response map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.wantKind, response["kind"])
			assert.NotEmpty(t, response["error"])
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("content_mirror_up 1\n"))
	})

	withMetrics := api.NewServer(mocks.NewMockService(ctrl), api.WithMetricsHandler(metrics))
	rr := serve(t, withMetrics, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "content_mirror_up 1\n", rr.Body.String())

	without := api.NewServer(mocks.NewMockService(ctrl))
	rr = serve(t, without, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMiddlewaresAreApplied(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	var seen []string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := api.NewServer(mocks.NewMockService(ctrl), api.WithMiddlewares(mw, api.LoggingMiddleware))
	rr := serve(t, server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"/health"}, seen)
}
