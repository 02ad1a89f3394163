package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/giygas/healthpost-api/handlers"
	"github.com/giygas/healthpost-api/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCost int64
	}{
		{"Metrics endpoint", "GET", "/metrics", 0},
		{"Health endpoint", "GET", "/health", 5},
		{"Classify", "POST", "/v1/clinical/classify", 10},
		{"WAZ", "POST", "/v1/clinical/waz", 10},
		{"Encounter", "POST", "/v1/patients/p-1/encounters", 20},
		{"Lots", "GET", "/v1/inventory/lots", 10},
		{"Alerts", "GET", "/v1/inventory/alerts", 10},
		{"Export", "GET", "/v1/inventory/export.xlsx", 100},
		{"Import", "POST", "/v1/inventory/imports", 200},
		{"Issue", "POST", "/v1/inventory/issues", 20},
		{"Receipt", "POST", "/v1/inventory/receipts", 20},
		{"Submit request", "POST", "/v1/inventory/requests", 20},
		{"Approve request", "POST", "/v1/inventory/requests/r1/approve", 20},
		{"Watch", "GET", "/v1/watch", 50},

		// Default case
		{"Default endpoint", "GET", "/unknown", 5},
		{"Root path", "GET", "/", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			cost := getTokenCost(req)

			if cost != tt.expectedCost {
				t.Errorf("Expected cost %d for %s %s, got %d", tt.expectedCost, tt.method, tt.path, cost)
			}
		})
	}
}

func TestRateLimiterRejectsWhenEmpty(t *testing.T) {
	rl := NewRateLimiter(0.001, 10)
	h := rl.Middleware(okHandler())

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)

		if rr.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("Expected X-RateLimit-Limit 10, got %q", rr.Header().Get("X-RateLimit-Limit"))
		}
	}

	expected := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range expected {
		if codes[i] != expected[i] {
			t.Fatalf("Expected status codes %v, got %v", expected, codes)
		}
	}
}

func TestRateLimiterKeysByHost(t *testing.T) {
	rl := NewRateLimiter(0.001, 5)
	h := rl.Middleware(okHandler())

	// same host, different ports share one bucket
	for i, addr := range []string{"10.0.0.2:1000", "10.0.0.2:2000"} {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rr.Code != want {
			t.Errorf("Request from %s: expected %d, got %d", addr, want, rr.Code)
		}
	}

	other := httptest.NewRequest("GET", "/health", nil)
	other.RemoteAddr = "10.0.0.3:1000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusOK {
		t.Errorf("Other client should have its own bucket, got %d", rr.Code)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, 100)
	rl.getBucket("10.0.0.4")
	busy := rl.getBucket("10.0.0.5")
	busy.TakeAvailable(50)

	if got := testutil.ToFloat64(metrics.RateLimiterBucketsTotal); got != 2 {
		t.Errorf("Expected 2 buckets before prune, got %v", got)
	}

	if removed := rl.prune(); removed != 1 {
		t.Errorf("Expected 1 idle bucket pruned, got %d", removed)
	}
	if got := testutil.ToFloat64(metrics.RateLimiterBucketsTotal); got != 1 {
		t.Errorf("Expected 1 bucket after prune, got %v", got)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestBody = 64
	cfg.MaxHeaderSize = 128
	h := RequestSizeMiddleware(cfg)(okHandler())

	tests := []struct {
		name     string
		path     string
		length   int64
		header   string
		expected int
	}{
		{"small body", "/v1/inventory/issues", 10, "", http.StatusOK},
		{"body too large", "/v1/inventory/issues", 65, "", http.StatusRequestEntityTooLarge},
		{"import allows large files", importPath, 5 << 20, "", http.StatusOK},
		{"import above its limit", importPath, handlers.MaxImportSize + 2<<20, "", http.StatusRequestEntityTooLarge},
		{"headers too large", "/health", 0, strings.Repeat("x", 200), http.StatusRequestHeaderFieldsTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			req.ContentLength = tt.length
			if tt.header != "" {
				req.Header.Set("X-Padding", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rr.Code)
			}
		})
	}
}

func TestRequestSizeMiddlewareCapsUnknownLength(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	s.config.MaxRequestBody = 32

	req := httptest.NewRequest("POST", "/v1/clinical/classify", strings.NewReader(`{"notes":"`+strings.Repeat("x", 100)+`"}`))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for an oversized chunked body, got %d: %s", rr.Code, rr.Body.String())
	}
}
