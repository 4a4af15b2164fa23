package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratingcore/internal/cache"
	"ratingcore/internal/logger"
	"ratingcore/internal/prefix"
	"ratingcore/internal/reload"
	"ratingcore/internal/validity"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/match"
)

type stubReloader struct {
	names    []string
	outcomes []reload.Outcome
	err      error
}

func (s *stubReloader) Reload(ctx context.Context, names ...string) ([]reload.Outcome, error) {
	s.names = names
	return s.outcomes, s.err
}

func setupRouter(t *testing.T, reloader reload.CacheReloader) (*gin.Engine, *cache.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := cache.NewRegistry([]cache.Definition{
		{Name: "zones", Kind: cache.KindPrefix, Fields: 2},
		{Name: "price_models", Kind: cache.KindValidity},
		{Name: "empty", Kind: cache.KindValidity},
	})
	require.NoError(t, err)

	tree, err := prefix.Build(2, []prefix.Entry{
		{Keys: []string{"VOICE", "0044"}, Value: "UK", Attributes: []string{"United Kingdom"}},
	})
	require.NoError(t, err)
	zones, _ := reg.Prefix("zones")
	zones.Store(tree, tree.Len())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	x, err := validity.Build([]validity.Segment{
		{Group: "RP1", ResourceID: "UK", ValidFrom: from, ValidTo: from.AddDate(0, 6, 0), Value: "PM1", Attributes: []string{"0.10"}},
		{Group: "RP1", ResourceID: "UK", ValidFrom: from.AddDate(0, 3, 0), Value: "PM2"},
	})
	require.NoError(t, err)
	prices, _ := reg.Validity("price_models")
	prices.Store(x, x.Len())

	router := gin.New()
	NewHandler(reg, reloader, logger.NopLogger()).RegisterRoutes(router)
	return router, reg
}

func get(router *gin.Engine, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestListCaches(t *testing.T) {
	router, _ := setupRouter(t, &stubReloader{})

	w := get(router, "/api/v1/caches")
	require.Equal(t, http.StatusOK, w.Code)

	var stats []cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats, 3)
	assert.Equal(t, "empty", stats[0].Name)
	assert.False(t, stats[0].Loaded)
	assert.Equal(t, "zones", stats[2].Name)
	assert.True(t, stats[2].Loaded)
	assert.Equal(t, 1, stats[2].Entries)
}

func TestLookupPrefix(t *testing.T) {
	router, _ := setupRouter(t, &stubReloader{})

	w := get(router, "/api/v1/lookup/prefix?cache=zones&key=VOICE&key=00442071234567")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PrefixLookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, []string{"UK"}, resp.Result)
	assert.Equal(t, []string{"UK", "United Kingdom"}, resp.WithChildData)
	assert.Equal(t, uint64(1), resp.Generation)

	w = get(router, "/api/v1/lookup/prefix?cache=zones&key=SMS&key=0044")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, []string{match.NoMatch}, resp.Result)
}

func TestLookupPrefixErrors(t *testing.T) {
	router, _ := setupRouter(t, &stubReloader{})

	tests := []struct {
		name   string
		url    string
		status int
		code   string
	}{
		{name: "unknown cache", url: "/api/v1/lookup/prefix?cache=nope&key=1&key=2", status: http.StatusNotFound, code: errors.ErrCacheNotFound.Code},
		{name: "wrong kind", url: "/api/v1/lookup/prefix?cache=price_models&key=1&key=2", status: http.StatusBadRequest, code: errors.ErrCacheWrongKind.Code},
		{name: "key count", url: "/api/v1/lookup/prefix?cache=zones&key=1", status: http.StatusBadRequest, code: errors.ErrValidation.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, tt.url)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error_code"])
		})
	}
}

func TestLookupValidityModes(t *testing.T) {
	router, _ := setupRouter(t, &stubReloader{})
	base := "/api/v1/lookup/validity/%s?cache=price_models&group=RP1&resource=UK&at=2024-05-01T00:00:00Z"

	tests := []struct {
		mode      string
		result    []string
		childData [][]string
	}{
		{mode: "first", result: []string{"PM1"}, childData: [][]string{{"PM1", "0.10"}}},
		{mode: "all", result: []string{"PM1", "PM2"}, childData: [][]string{{"PM1", "0.10"}, {"PM2"}}},
		{mode: "from", result: []string{"PM2"}, childData: [][]string{{"PM2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			w := get(router, fmt.Sprintf(base, tt.mode))
			require.Equal(t, http.StatusOK, w.Code)

			var resp ValidityLookupResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Valid)
			assert.Equal(t, tt.result, resp.Result)
			assert.Equal(t, tt.childData, resp.WithChildData)
		})
	}
}

func TestLookupValidityMiss(t *testing.T) {
	router, _ := setupRouter(t, &stubReloader{})

	w := get(router, "/api/v1/lookup/validity/all?cache=price_models&group=RP1&resource=UK&at=2023-05-01T00:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidityLookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, []string{match.NoValidityMatch}, resp.Result)
	assert.Equal(t, [][]string{{match.NoValidityMatch}}, resp.WithChildData)
}

func TestLookupValidityErrors(t *testing.T) {
	router, _ := setupRouter(t, &stubReloader{})

	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/lookup/validity/latest?cache=price_models&at=2024-05-01T00:00:00Z").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/lookup/validity/first?cache=price_models&at=yesterday").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/api/v1/lookup/validity/first?cache=empty&at=2024-05-01T00:00:00Z").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/lookup/validity/first?cache=zones&at=2024-05-01T00:00:00Z").Code)
}

func TestReloadCaches(t *testing.T) {
	reloader := &stubReloader{outcomes: []reload.Outcome{{Cache: "zones", Kind: cache.KindPrefix, Generation: 2, Entries: 1}}}
	router, _ := setupRouter(t, reloader)

	body, _ := json.Marshal(ReloadRequest{Caches: []string{"zones"}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/caches/reload", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"zones"}, reloader.names)

	var resp ReloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, uint64(2), resp.Outcomes[0].Generation)
	assert.Empty(t, resp.Error)
}

func TestReloadCachesWithoutBody(t *testing.T) {
	reloader := &stubReloader{}
	router, _ := setupRouter(t, reloader)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/caches/reload", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, reloader.names)
	assert.JSONEq(t, `{"outcomes":[]}`, w.Body.String())
}

func TestReloadCachesFailure(t *testing.T) {
	reloader := &stubReloader{
		outcomes: []reload.Outcome{{Cache: "zones", Kind: cache.KindPrefix, Error: "connection refused"}},
		err:      errors.ErrServiceUnavailable.WithDetail("message", "cache reload failed"),
	}
	router, _ := setupRouter(t, reloader)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/caches/reload", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ReloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "connection refused", resp.Outcomes[0].Error)
	assert.NotEmpty(t, resp.Error)
}

func TestReloadCachesUnknown(t *testing.T) {
	reloader := &stubReloader{err: errors.ErrCacheNotFound.WithDetail("cache", "nope")}
	router, _ := setupRouter(t, reloader)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/caches/reload", bytes.NewBufferString(`{"caches":["nope"]}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReloadCachesBadBody(t *testing.T) {
	router, _ := setupRouter(t, &stubReloader{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/caches/reload", bytes.NewBufferString(`{"caches":`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
