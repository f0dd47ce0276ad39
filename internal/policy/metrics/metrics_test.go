package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRoutePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/v1/policies", "/v1/policies"},
		{"/v1/policies/6f1c2a90-0000-4000-8000-000000000001/activate", "/v1/policies/:id/activate"},
		{"/v1/sales/stats", "/v1/sales/stats"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoutePath(tt.in))
	}
}

func TestHTTPMetricsMiddlewareRecordsStatus(t *testing.T) {
	handler := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/me", "418"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/me", "418"))

	assert.Equal(t, before+1, after)
}
