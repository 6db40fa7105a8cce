package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsSafeToCallMoreThanOnce(t *testing.T) {
	require.NotPanics(t, func() {
		New()
		New()
		New()
	})
}

func TestHandlerServesOwnCollectors(t *testing.T) {
	m := New()
	m.AssignedTotal.Inc()
	m.StageDuration.WithLabelValues("rv").Observe(0.01)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "kabina_pipeline_assigned_requests_total")
}
