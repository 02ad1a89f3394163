package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/metrics"
	"github.com/giygas/healthpost-api/store"
)

var sweepNow = time.Date(2024, 4, 14, 6, 0, 0, 0, time.UTC)

type staticLots struct {
	lots []inventory.Lot
	err  error
	hits atomic.Int32
}

func (s *staticLots) AllLots(context.Context) ([]inventory.Lot, error) {
	s.hits.Add(1)
	return s.lots, s.err
}

type mockCache struct {
	lastUpdated time.Time
	refreshes   atomic.Int32
}

func (m *mockCache) LastUpdated() time.Time { return m.lastUpdated }
func (m *mockCache) Count() int             { return 0 }
func (m *mockCache) Refresh(context.Context) error {
	m.refreshes.Add(1)
	return nil
}

func expiry(days int) *time.Time {
	t := sweepNow.AddDate(0, 0, days)
	return &t
}

func testLots() []inventory.Lot {
	two := decimal.NewFromInt(2)
	return []inventory.Lot{
		{ID: "a", ItemName: "ORS", StoreID: "main", ItemType: inventory.Expendable, CurrentQuantity: 3,
			Rate: two, TotalAmount: decimal.NewFromInt(6), ExpiryDateAd: expiry(-1)},
		{ID: "b", ItemName: "ORS", StoreID: "main", ItemType: inventory.Expendable, CurrentQuantity: 40,
			Rate: two, TotalAmount: decimal.NewFromInt(80), ExpiryDateAd: expiry(30)},
		{ID: "c", ItemName: "Zinc", StoreID: "main", ItemType: inventory.Expendable, CurrentQuantity: 2,
			Rate: two, TotalAmount: decimal.NewFromInt(4), ExpiryDateAd: expiry(400)},
	}
}

func newTestScheduler(src LotSource, cache LotCache) (*Scheduler, *store.Memory) {
	mem := store.NewMemory()
	s := NewScheduler(src, mem, cache, Options{
		SweepTimes:   "06:00;18:00",
		ExpiryWindow: 90 * 24 * time.Hour,
		LowStock:     5,
		Now:          func() time.Time { return sweepNow },
	})
	return s, mem
}

func TestSweep_BuildsAndPersistsReport(t *testing.T) {
	logging.InitLogger("")
	cache := &mockCache{}
	s, mem := newTestScheduler(&staticLots{lots: testLots()}, cache)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "2024-04-14", report.Date)
	assert.Equal(t, 3, report.Lots)
	require.Len(t, report.Alerts.Expired, 1)
	assert.Equal(t, "a", report.Alerts.Expired[0].LotID)
	require.Len(t, report.Alerts.ExpiringSoon, 1)
	assert.Equal(t, "b", report.Alerts.ExpiringSoon[0].LotID)
	require.Len(t, report.Alerts.LowStock, 1)
	assert.Equal(t, "Zinc", report.Alerts.LowStock[0].ItemName)
	assert.Len(t, report.Levels, 2)
	assert.True(t, report.Quality.Clean())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.InventoryExpiringLots))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InventoryLowStockItems))
	assert.Equal(t, int32(1), cache.refreshes.Load())

	v, ok, err := mem.Read(context.Background(), inventory.ReportPath("2024-04-14"))
	require.NoError(t, err)
	require.True(t, ok)
	var stored StockReport
	require.NoError(t, store.Decode(v, &stored))
	assert.Equal(t, 3, stored.Lots)
	assert.Len(t, stored.Alerts.Expired, 1)
}

func TestSweep_ReportsQualityIssues(t *testing.T) {
	logging.InitLogger("")
	lots := testLots()
	lots[2].TotalAmount = decimal.NewFromInt(99)
	lots = append(lots, inventory.Lot{ID: "d", ItemName: "Gloves", StoreID: "main", ItemType: inventory.Expendable, CurrentQuantity: 10})
	s, _ := newTestScheduler(&staticLots{lots: lots}, nil)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Quality.AmountDrift)
	assert.Equal(t, []string{"d"}, report.Quality.MissingExpiryIDs)
}

func TestSweep_SourceError(t *testing.T) {
	logging.InitLogger("")
	s, mem := newTestScheduler(&staticLots{err: errors.New("store down")}, nil)

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")

	_, ok, err := mem.Read(context.Background(), inventory.ReportsRoot)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweep_SkipsWhenRunning(t *testing.T) {
	logging.InitLogger("")
	src := &staticLots{lots: testLots()}
	s, _ := newTestScheduler(src, nil)

	s.sweeping.Store(true)
	report, err := s.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, int32(0), src.hits.Load())
}

func TestSweep_WithService(t *testing.T) {
	logging.InitLogger("")
	ctx := context.Background()
	mem := store.NewMemory()
	svc := inventory.NewService(mem, inventory.ClockStamper{Now: func() time.Time { return sweepNow }}, inventory.Options{})
	_, err := svc.Receive(ctx, []inventory.ReceiptLine{{
		ItemName: "ORS", Quantity: 4, Rate: decimal.NewFromInt(2), ItemType: inventory.Expendable, StoreID: "main",
		ExpiryDateAd: expiry(10),
	}})
	require.NoError(t, err)

	s := NewScheduler(svc, mem, nil, Options{LowStock: 5, Now: func() time.Time { return sweepNow }})
	report, err := s.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Lots)
	assert.Len(t, report.Alerts.ExpiringSoon, 1)
	assert.Len(t, report.Alerts.LowStock, 1)
}

func TestCheckCache(t *testing.T) {
	logging.InitLogger("")
	cache := &mockCache{lastUpdated: sweepNow.Add(-time.Hour)}
	s, _ := newTestScheduler(&staticLots{}, cache)

	assert.True(t, s.checkCache())

	cache.lastUpdated = sweepNow.Add(-26 * time.Hour)
	assert.False(t, s.checkCache())
}

func TestNextRunAfter(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		spec string
		now  time.Time
		want time.Time
	}{
		{"before first", "06:00;18:00", time.Date(2024, 4, 14, 5, 0, 0, 0, loc), time.Date(2024, 4, 14, 6, 0, 0, 0, loc)},
		{"between", "06:00;18:00", time.Date(2024, 4, 14, 12, 0, 0, 0, loc), time.Date(2024, 4, 14, 18, 0, 0, 0, loc)},
		{"after last", "06:00;18:00", time.Date(2024, 4, 14, 19, 0, 0, 0, loc), time.Date(2024, 4, 15, 6, 0, 0, 0, loc)},
		{"exactly at", "06:00;18:00", time.Date(2024, 4, 14, 6, 0, 0, 0, loc), time.Date(2024, 4, 14, 18, 0, 0, 0, loc)},
		{"unordered with seconds", "18:30:15; 07:00", time.Date(2024, 4, 14, 8, 0, 0, 0, loc), time.Date(2024, 4, 14, 18, 30, 15, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRunAfter(tt.spec, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NextRunAfter("25:00", sweepNow)
	assert.Error(t, err)
	_, err = NextRunAfter(" ; ", sweepNow)
	assert.Error(t, err)
}

func TestNextSweep_BeforeStart(t *testing.T) {
	s, _ := newTestScheduler(&staticLots{}, nil)

	assert.Equal(t, time.Date(2024, 4, 14, 18, 0, 0, 0, time.UTC), s.NextSweep())
}

func TestStartStop(t *testing.T) {
	logging.InitLogger("")
	src := &staticLots{lots: testLots()}
	mem := store.NewMemory()
	s := NewScheduler(src, mem, &mockCache{lastUpdated: time.Now()}, Options{SweepTimes: "03:00"})

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, int32(1), src.hits.Load())
	assert.True(t, s.NextSweep().After(time.Now()))

	s.Stop()
	s.Stop()
}

func TestStart_InitialSweepFails(t *testing.T) {
	logging.InitLogger("")
	s, _ := newTestScheduler(&staticLots{err: errors.New("boom")}, nil)

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial stock sweep failed")
}
