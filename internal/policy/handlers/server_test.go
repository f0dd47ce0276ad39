package handlers

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gartstein/insurecrm/internal/policy/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newTestHandler(t *testing.T) *Handler {
	return NewHandler(&mockPolicyController{}, &mockSalesController{}, &mockCatalogController{}, &mockRunner{}, zaptest.NewLogger(t))
}

func TestServer_RegisterHTTPHandler(t *testing.T) {
	s := NewServer(50061, 8091, zaptest.NewLogger(t))
	guarded := false
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guarded = true
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), testIdentity)))
		})
	}

	require.NoError(t, s.RegisterHTTPHandler(newTestHandler(t), guard))
	require.NotNil(t, s.httpServer.Handler)
	assert.Equal(t, s.httpEndpoint, s.httpServer.Addr)

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.True(t, guarded, "every request passes the guard")

	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "insurecrm_http_requests_total")
}

func TestServer_ReminderHealth(t *testing.T) {
	s := NewServer(50062, 8092, zaptest.NewLogger(t))
	ctx := context.Background()
	req := &healthpb.HealthCheckRequest{Service: ReminderService}

	resp, err := s.health.Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	s.SetReminderStatus(true)
	resp, err = s.health.Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	s.SetReminderStatus(false)
	resp, err = s.health.Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer(50063, 8093, zaptest.NewLogger(t), grpc.Creds(insecure.NewCredentials()))
	require.NoError(t, s.RegisterHTTPHandler(newTestHandler(t), func(next http.Handler) http.Handler { return next }))
	s.SetReminderStatus(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	// Give the server a moment to start.
	time.Sleep(200 * time.Millisecond)

	conn, err := grpc.NewClient("localhost"+s.grpcEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ReminderService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	conn.Close()

	httpResp, err := http.Get("http://localhost" + s.httpEndpoint + "/health")
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)

	s.Stop()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server to stop")
	}

	lis, err := net.Listen("tcp", s.grpcEndpoint)
	if assert.NoError(t, err, "gRPC port is released after shutdown") {
		lis.Close()
	}
}
