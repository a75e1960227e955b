package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegisterAndCount(t *testing.T) {
	m := New()

	m.GamesActive.Inc()
	m.HandsPlayed.Inc()
	m.HandsPlayed.Inc()
	m.ActionsTotal.WithLabelValues("fold").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GamesActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HandsPlayed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("fold")))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.QueueDepth.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "shortdeck_queue_depth 3")
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.GamesActive.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GamesActive))
}
