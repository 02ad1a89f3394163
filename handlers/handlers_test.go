package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/store"
)

// ============================================================================
// RESPONSE HELPERS
// ============================================================================

func TestRespondWithJSON(t *testing.T) {
	f := newFixture(t, inventory.PolicyBlock)

	tests := []struct {
		name         string
		code         int
		payload      any
		expectedJSON string
	}{
		{"object", http.StatusOK, map[string]string{"message": "success"}, `{"message":"success"}`},
		{"nil payload", http.StatusOK, nil, `null`},
		{"array", http.StatusCreated, []string{"item1", "item2"}, `["item1","item2"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			f.h.RespondWithJSON(rr, tt.code, tt.payload)

			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
			assert.NotEmpty(t, rr.Header().Get("Last-Modified"))
			assert.JSONEq(t, tt.expectedJSON, rr.Body.String())
		})
	}
}

func TestRespondWithJSONMarshalFailure(t *testing.T) {
	f := newFixture(t, inventory.PolicyBlock)
	rr := httptest.NewRecorder()

	f.h.RespondWithJSON(rr, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRespondWithError(t *testing.T) {
	f := newFixture(t, inventory.PolicyBlock)
	rr := httptest.NewRecorder()

	f.h.RespondWithError(rr, http.StatusNotFound, "nothing here")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"Not Found","message":"nothing here","code":404}`, rr.Body.String())
}

func TestRespondServiceError(t *testing.T) {
	f := newFixture(t, inventory.PolicyBlock)

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"shortfall", &inventory.ShortfallError{Shortfalls: []inventory.LineShortfall{{Name: "ORS", Requested: 5, Shortfall: 2}}}, http.StatusConflict},
		{"wrapped shortfall", fmt.Errorf("approve: %w", &inventory.ShortfallError{}), http.StatusConflict},
		{"not found", fmt.Errorf("%w: r1", inventory.ErrRequestNotFound), http.StatusNotFound},
		{"closed", fmt.Errorf("%w: r1 is approved", inventory.ErrRequestClosed), http.StatusConflict},
		{"empty", inventory.ErrEmptyRequest, http.StatusBadRequest},
		{"invalid path", fmt.Errorf("%w: bad", store.ErrInvalidPath), http.StatusBadRequest},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/inventory/issues", nil)

			f.h.respondServiceError(rr, req, tt.err)

			assert.Equal(t, tt.code, rr.Code)
			var body ErrorResponse
			decodeBody(t, rr, &body)
			assert.Equal(t, tt.code, body.Code)
			if tt.code == http.StatusInternalServerError {
				assert.NotContains(t, body.Message, "disk on fire")
			}
		})
	}
}

func TestRespondServiceErrorCarriesShortfalls(t *testing.T) {
	f := newFixture(t, inventory.PolicyBlock)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/inventory/issues", nil)

	f.h.respondServiceError(rr, req, &inventory.ShortfallError{Shortfalls: []inventory.LineShortfall{{Line: 0, Name: "ORS", Requested: 5, Shortfall: 2}}})

	var body ErrorResponse
	decodeBody(t, rr, &body)
	require.Len(t, body.Shortfalls, 1)
	assert.Equal(t, "ORS", body.Shortfalls[0].Name)
	assert.Equal(t, 2.0, body.Shortfalls[0].Shortfall)
}

func TestDecodeJSONErrors(t *testing.T) {
	f := newFixture(t, inventory.PolicyBlock)
	router := f.router()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty body", "", "missing request body"},
		{"malformed", `{"vitals":`, "invalid JSON body"},
		{"wrong type", `{"age_months":"ten"}`, "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/v1/clinical/classify", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var body ErrorResponse
			decodeBody(t, rr, &body)
			assert.True(t, strings.HasPrefix(body.Message, tt.message), body.Message)
		})
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	f := newFixture(t, inventory.PolicyBlock)

	req := httptest.NewRequest(http.MethodPost, "/v1/clinical/classify", strings.NewReader(`{"notes":"`+strings.Repeat("x", 100)+`"}`))
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, req.Body, 16)

	f.h.ClassifyAssessment(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

// ============================================================================
// HEALTH
// ============================================================================

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		health stubHealth
	}{
		{"healthy", stubHealth{status: "healthy", code: http.StatusOK}},
		{"degraded", stubHealth{status: "degraded", code: http.StatusServiceUnavailable}},
		{"unhealthy", stubHealth{status: "unhealthy", code: http.StatusServiceUnavailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, inventory.PolicyBlock)
			f.h.health = tt.health

			rr := doJSON(t, f.router(), http.MethodGet, "/health", nil)

			assert.Equal(t, tt.health.code, rr.Code)
			var body HealthResponse
			decodeBody(t, rr, &body)
			assert.Equal(t, tt.health.status, body.Status)
			assert.Equal(t, "ok", body.Data["store"])
			assert.Contains(t, body.System, "goroutines")
			assert.Contains(t, body.System, "memory")
			assert.NotEmpty(t, body.Uptime)
		})
	}
}

func TestFormatUptimeHuman(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "0s"},
		{59, "59s"},
		{61, "1m 1s"},
		{3600, "1h 0m 0s"},
		{90061, "1d 1h 1m 1s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatUptimeHuman(secondsDuration(tt.seconds)))
		})
	}
}
