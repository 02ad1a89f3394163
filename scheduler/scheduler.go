// Package scheduler runs the stock sweep: at fixed times of day it builds
// the stock alerts and the data quality report, publishes them as gauges
// and persists them under reports/stock/{date}. A watchdog warns when the
// lot cache stops refreshing.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/metrics"
	"github.com/giygas/healthpost-api/validation"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// DefaultSweepTimes runs the sweep twice a day.
const DefaultSweepTimes = "06:00;18:00"

// LotSource lists every lot.
type LotSource interface {
	AllLots(ctx context.Context) ([]inventory.Lot, error)
}

// LotCache is the snapshot the sweep refreshes and the watchdog checks.
type LotCache interface {
	interfaces.CacheStatus
	Refresh(ctx context.Context) error
}

// Options configures the sweep.
type Options struct {
	SweepTimes   string        // gocron At syntax, "HH:MM[:SS]" joined by ';'
	ExpiryWindow time.Duration // lots expiring within it are reported
	LowStock     float64       // items at or below it are reported
	StaleAfter   time.Duration // watchdog threshold on the cache age
	Now          func() time.Time
}

// StockReport is what one sweep persists.
type StockReport struct {
	Date        string                             `json:"date"`
	GeneratedAt time.Time                          `json:"generatedAt"`
	Lots        int                                `json:"lots"`
	Alerts      inventory.StockAlerts              `json:"alerts"`
	Levels      []inventory.StockLevel             `json:"levels"`
	Quality     *validation.InventoryQualityReport `json:"quality"`
}

// Scheduler runs the stock sweep using injected dependencies
type Scheduler struct {
	lots      LotSource
	ds        interfaces.DocumentStore
	cache     LotCache
	validator *validation.Validator
	opts      Options
	scheduler *gocron.Scheduler
	job       *gocron.Job

	sweeping atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
}

// NewScheduler creates a new scheduler instance with injected dependencies.
// cache may be nil.
func NewScheduler(lots LotSource, ds interfaces.DocumentStore, cache LotCache, opts Options) *Scheduler {
	if opts.SweepTimes == "" {
		opts.SweepTimes = DefaultSweepTimes
	}
	if opts.ExpiryWindow <= 0 {
		opts.ExpiryWindow = 90 * 24 * time.Hour
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 25 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		lots:      lots,
		ds:        ds,
		cache:     cache,
		validator: validation.NewValidator(),
		opts:      opts,
		scheduler: gocron.NewScheduler(time.Local),
		stop:      make(chan struct{}),
	}
}

// Start runs a first sweep, schedules the next ones and starts the
// watchdog.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Initial sweep
	if _, err := s.Sweep(ctx); err != nil {
		logging.Error("Failed to perform initial stock sweep", "error", err)
		return fmt.Errorf("initial stock sweep failed: %w", err)
	}

	job, err := s.scheduler.Every(1).Day().At(s.opts.SweepTimes).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			logging.Error("Failed to sweep stock", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule stock sweep", "error", err)
		return fmt.Errorf("failed to schedule stock sweep: %w", err)
	}
	s.job = job

	s.scheduler.StartAsync()

	s.startWatchdog(time.Hour)

	return nil
}

// Stop stops the scheduler and the watchdog
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.stopOnce.Do(func() { close(s.stop) })
}

// NextSweep returns the next scheduled sweep. Before Start it is computed
// from the configured times.
func (s *Scheduler) NextSweep() time.Time {
	if s.job != nil && s.scheduler.IsRunning() {
		if next := s.job.NextRun(); !next.IsZero() {
			return next
		}
	}
	next, err := NextRunAfter(s.opts.SweepTimes, s.opts.Now())
	if err != nil {
		return time.Time{}
	}
	return next
}

// Sweep builds and persists today's stock report. Overlapping sweeps are
// skipped and return a nil report.
func (s *Scheduler) Sweep(ctx context.Context) (*StockReport, error) {
	// Prevent concurrent sweeps
	if !s.sweeping.CompareAndSwap(false, true) {
		logging.Info("Stock sweep already in progress, skipping...")
		return nil, nil
	}
	defer s.sweeping.Store(false)

	start := time.Now()
	now := s.opts.Now()

	lots, err := s.lots.AllLots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load lots: %w", err)
	}

	alerts := inventory.BuildStockAlerts(lots, now, s.opts.ExpiryWindow, s.opts.LowStock)
	report := &StockReport{
		Date:        now.Format("2006-01-02"),
		GeneratedAt: now,
		Lots:        len(lots),
		Alerts:      alerts,
		Levels:      inventory.StockLevels(lots),
		Quality:     s.validator.ReportInventoryQuality(lots),
	}

	if len(alerts.Expired) > 0 {
		logging.Warn("Expired lots with stock left",
			"count", len(alerts.Expired),
			"lots", alertLotIDs(alerts.Expired),
		)
	}
	if len(alerts.LowStock) > 0 {
		logging.Warn("Items at or below low stock threshold",
			"count", len(alerts.LowStock),
			"threshold", s.opts.LowStock,
		)
	}
	if q := report.Quality; q.NegativeQuantity > 0 || q.AmountDrift > 0 || q.MissingExpiry > 0 {
		logging.Warn("Inventory data quality issues",
			"negative_quantity", q.NegativeQuantity,
			"amount_drift", q.AmountDrift,
			"missing_expiry", q.MissingExpiry,
			"invalid_item_type", q.InvalidItemType,
		)
	}

	metrics.InventoryExpiringLots.Set(float64(len(alerts.Expired) + len(alerts.ExpiringSoon)))
	metrics.InventoryLowStockItems.Set(float64(len(alerts.LowStock)))

	if err := s.ds.Write(ctx, inventory.ReportPath(report.Date), report); err != nil {
		return nil, fmt.Errorf("failed to persist stock report: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Refresh(ctx); err != nil {
			logging.Warn("Failed to refresh lot cache after sweep", "error", err)
		}
	}

	logging.Info("Stock sweep completed",
		"duration", time.Since(start).String(),
		"lots", len(lots),
		"expired", len(alerts.Expired),
		"expiring_soon", len(alerts.ExpiringSoon),
		"low_stock", len(alerts.LowStock),
	)
	return report, nil
}

// startWatchdog monitors the freshness of the lot cache
func (s *Scheduler) startWatchdog(every time.Duration) {
	if s.cache == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.checkCache()
			}
		}
	}()
}

// checkCache reports whether the cache is fresh, logging when it is not.
func (s *Scheduler) checkCache() bool {
	age := s.opts.Now().Sub(s.cache.LastUpdated())
	if age > s.opts.StaleAfter {
		logging.Warn("Lot cache hasn't been refreshed recently",
			"age", age.Round(time.Minute).String(),
			"threshold", s.opts.StaleAfter.String(),
		)
		return false
	}
	return true
}

// NextRunAfter returns the first time of day in spec strictly after now.
func NextRunAfter(spec string, now time.Time) (time.Time, error) {
	var next time.Time
	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		at, err := parseClock(part)
		if err != nil {
			return time.Time{}, err
		}
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		t := day.Add(at)
		if !t.After(now) {
			t = day.AddDate(0, 0, 1).Add(at)
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no sweep times in %q", spec)
	}
	return next, nil
}

func parseClock(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid sweep time %q", s)
}

func alertLotIDs(alerts []inventory.ExpiryAlert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.LotID)
	}
	return ids
}
