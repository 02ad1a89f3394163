package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/healthpost-api/config"
	"github.com/giygas/healthpost-api/data"
	"github.com/giygas/healthpost-api/handlers"
	"github.com/giygas/healthpost-api/health"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:           "8080",
		Address:        "localhost",
		Env:            config.EnvTest,
		LogLevel:       "info",
		MaxRequestBody: 1048576,
		MaxHeaderSize:  1048576,
		CORSOrigins:    []string{"*"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.Memory) {
	t.Helper()
	logging.InitLogger("")

	mem := store.NewMemory()
	svc := inventory.NewService(mem, inventory.ClockStamper{}, inventory.Options{})
	cache := data.NewLotCache(mem)
	require.NoError(t, cache.Start(context.Background()))
	t.Cleanup(cache.Stop)

	h := handlers.NewHTTPHandler(mem, svc, cache, health.NewHealthChecker(mem, cache, nil), handlers.Options{
		LowStock:       10,
		AllowedOrigins: cfg.CORSOrigins,
	})
	s := NewServer(cfg, h)
	s.drainWait = 0
	t.Cleanup(s.limiter.Stop)
	return s, mem
}

func TestNewServer(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestServer(t, cfg)

	if s.server.Addr != "localhost:8080" {
		t.Errorf("Expected server address localhost:8080, got %s", s.server.Addr)
	}
	if s.config != cfg {
		t.Error("Config should be set correctly")
	}
	if s.handler == nil || s.limiter == nil {
		t.Error("Handler and limiter should be set")
	}
	if s.server.ReadTimeout != 15*time.Second {
		t.Errorf("Expected read timeout 15s, got %v", s.server.ReadTimeout)
	}
}

func TestRoutesAreMounted(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/health", ""},
		{http.MethodGet, "/metrics", ""},
		{http.MethodPost, "/v1/clinical/classify", `{"age_months":12}`},
		{http.MethodPost, "/v1/clinical/waz", `{"weight_kg":9,"age_months":12}`},
		{http.MethodPost, "/v1/patients/p-1/encounters", `{"assessment":{"age_months":12}}`},
		{http.MethodGet, "/v1/inventory/lots", ""},
		{http.MethodGet, "/v1/inventory/alerts", ""},
		{http.MethodGet, "/v1/inventory/export.xlsx", ""},
		{http.MethodPost, "/v1/inventory/issues", `{}`},
		{http.MethodPost, "/v1/inventory/receipts", `{}`},
		{http.MethodPost, "/v1/inventory/imports", ""},
		{http.MethodPost, "/v1/inventory/requests", `{}`},
		{http.MethodGet, "/v1/inventory/requests/r1", ""},
		{http.MethodPost, "/v1/inventory/requests/r1/approve", ""},
		{http.MethodPost, "/v1/inventory/requests/r1/reject", ""},
		{http.MethodGet, "/v1/watch", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)

			if rr.Code == http.StatusMethodNotAllowed {
				t.Errorf("%s %s is not routed", tt.method, tt.path)
			}
			if rr.Code == http.StatusNotFound && !strings.Contains(rr.Body.String(), "request") {
				t.Errorf("%s %s is not routed: %s", tt.method, tt.path, rr.Body.String())
			}
		})
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "no such endpoint", body.Message)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/inventory/lots", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthThroughStack(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Remaining"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	// one request so the HTTP series exist
	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/inventory/lots", nil))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_request_total")
	assert.Contains(t, rr.Body.String(), `path="/v1/inventory/lots"`)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/inventory/issues", nil)
	req.Header.Set("Origin", "https://post.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCompressedJSON(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/inventory/lots", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
}

func TestWatchThroughStack(t *testing.T) {
	s, mem := newTestServer(t, testConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/watch?path=inventory"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	var ev handlers.ChangeEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.False(t, ev.Exists)

	require.NoError(t, mem.Write(context.Background(), "inventory/main/l1", map[string]any{"itemName": "ORS"}))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.True(t, ev.Exists)
}

func TestStartAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = "0"
	s, _ := newTestServer(t, cfg)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	// Let ListenAndServe begin
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
