package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fails(err error) CheckFunc {
	return func(context.Context) error { return err }
}

type stubCaches []string

func (s stubCaches) Unloaded() []string { return s }

func TestRegistryStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical error
		optional error
		want     Status
	}{
		{name: "all healthy", want: StatusHealthy},
		{name: "optional down", optional: errors.New("mongo down"), want: StatusDegraded},
		{name: "critical down", critical: errors.New("caches"), want: StatusUnhealthy},
		{name: "both down", critical: errors.New("caches"), optional: errors.New("mongo"), want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Critical("caches", fails(tt.critical))
			r.Optional("mongodb", fails(tt.optional))

			report := r.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			require.Len(t, report.Checks, 2)
			if tt.optional != nil {
				assert.Equal(t, StatusDegraded, report.Checks["mongodb"].Status)
				assert.Equal(t, tt.optional.Error(), report.Checks["mongodb"].Message)
			}
		})
	}
}

func TestCheckTimeout(t *testing.T) {
	r := NewRegistry()
	r.Critical("slow", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(checkTimeout), deadline, time.Second)
		return nil
	})

	assert.Equal(t, StatusHealthy, r.Run(context.Background()).Status)
}

func TestCaches(t *testing.T) {
	err := Caches(stubCaches{"zones", "holidays"})(context.Background())
	assert.EqualError(t, err, "caches not loaded: zones, holidays")

	assert.NoError(t, Caches(stubCaches(nil))(context.Background()))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := NewRegistry()
	r.Critical("caches", Caches(stubCaches{"zones"}))
	router := gin.New()
	router.GET("/health", r.Handler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var report Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "caches not loaded: zones", report.Checks["caches"].Message)
}
