package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/giygas/healthpost-api/data"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/store"
)

var testNow = time.Date(2024, 4, 14, 9, 30, 0, 0, time.UTC)

// stubHealth reports a fixed status
type stubHealth struct {
	status string
	code   int
}

func (s stubHealth) HealthCheck(context.Context) (string, map[string]any, int) {
	return s.status, map[string]any{"store": "ok", "lots": 0}, s.code
}

func (s stubHealth) NextSweep() time.Time { return time.Time{} }

type fixture struct {
	mem   *store.Memory
	svc   *inventory.Service
	cache *data.LotCache
	h     *HTTPHandlerImpl
}

func newFixture(t *testing.T, policy inventory.ShortfallPolicy) *fixture {
	t.Helper()
	logging.InitLogger("")

	mem := store.NewMemory()
	n := 0
	svc := inventory.NewService(mem, inventory.ClockStamper{Now: func() time.Time { return testNow }}, inventory.Options{
		Policy: policy,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	cache := data.NewLotCache(mem)
	require.NoError(t, cache.Start(context.Background()))
	t.Cleanup(cache.Stop)

	h := NewHTTPHandler(mem, svc, cache, stubHealth{status: "healthy", code: http.StatusOK}, Options{
		ExpiryWindow:   90 * 24 * time.Hour,
		LowStock:       10,
		AllowedOrigins: []string{"*"},
		Now:            func() time.Time { return testNow },
	})
	return &fixture{mem: mem, svc: svc, cache: cache, h: h}
}

// router mounts the handlers the way the server does
func (f *fixture) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", f.h.HealthCheck)
	r.Post("/v1/clinical/classify", f.h.ClassifyAssessment)
	r.Post("/v1/clinical/waz", f.h.EstimateWAZ)
	r.Post("/v1/patients/{patientId}/encounters", f.h.RecordEncounter)
	r.Get("/v1/inventory/lots", f.h.ServeLots)
	r.Get("/v1/inventory/alerts", f.h.ServeAlerts)
	r.Get("/v1/inventory/export.xlsx", f.h.ExportStock)
	r.Post("/v1/inventory/issues", f.h.IssueStock)
	r.Post("/v1/inventory/receipts", f.h.ReceiveStock)
	r.Post("/v1/inventory/imports", f.h.ImportStock)
	r.Post("/v1/inventory/requests", f.h.SubmitRequest)
	r.Get("/v1/inventory/requests/{id}", f.h.GetRequest)
	r.Post("/v1/inventory/requests/{id}/approve", f.h.ApproveRequest)
	r.Post("/v1/inventory/requests/{id}/reject", f.h.RejectRequest)
	r.Get("/v1/watch", f.h.Watch)
	return r
}

func (f *fixture) seed(t *testing.T, lots ...inventory.Lot) {
	t.Helper()
	require.NoError(t, f.mem.Update(context.Background(), inventory.MutationUpdate(mutationsOf(lots))))
}

func mutationsOf(lots []inventory.Lot) []inventory.LotMutation {
	out := make([]inventory.LotMutation, len(lots))
	for i, l := range lots {
		out[i] = inventory.LotMutation{Lot: l, Kind: inventory.MutationCreated, Quantity: l.CurrentQuantity}
	}
	return out
}

func testLot(id, storeID, name string, qty float64, expiry string) inventory.Lot {
	rate := decimal.NewFromInt(2)
	l := inventory.Lot{
		ID:              id,
		ItemName:        name,
		StoreID:         storeID,
		ItemType:        inventory.Expendable,
		CurrentQuantity: qty,
		Rate:            rate,
		TotalAmount:     decimal.NewFromFloat(qty).Mul(rate),
	}
	if expiry != "" {
		d, err := time.Parse("2006-01-02", expiry)
		if err != nil {
			panic(err)
		}
		l.ExpiryDateAd = &d
	}
	return l
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
