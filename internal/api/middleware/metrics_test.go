package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/eldtechnologies/brokenphone/internal/metrics"
)

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics(30 * time.Second))
	r.Get("/plays/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/plays/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plays/"+id, nil))
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}

func TestDurationBuckets_ReachMaxWait(t *testing.T) {
	buckets := metrics.DurationBuckets(30 * time.Second)
	assert.InDelta(t, 0.001, buckets[0], 1e-9)
	assert.InDelta(t, 30.0, buckets[len(buckets)-1], 1e-6)
	for i := 1; i < len(buckets); i++ {
		assert.Greater(t, buckets[i], buckets[i-1])
	}

	short := metrics.DurationBuckets(100 * time.Millisecond)
	assert.InDelta(t, 1.0, short[len(short)-1], 1e-6)
}
