// Package health reports whether the document store answers and the lot
// cache is fresh.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/healthpost-api/interfaces"
)

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// SweepClock tells when the next stock sweep runs.
type SweepClock interface {
	NextSweep() time.Time
}

const pingTimeout = 2 * time.Second

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	store  interfaces.DocumentStore
	cache  interfaces.CacheStatus
	sweeps SweepClock
	now    func() time.Time
}

// NewHealthChecker creates a new health checker with injected dependencies.
// sweeps may be nil.
func NewHealthChecker(store interfaces.DocumentStore, cache interfaces.CacheStatus, sweeps SweepClock) *HealthCheckerImpl {
	return &HealthCheckerImpl{
		store:  store,
		cache:  cache,
		sweeps: sweeps,
		now:    time.Now,
	}
}

// HealthCheck returns HTTP-specific health data
// Used by /health HTTP endpoint
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	pingErr := h.store.Ping(pingCtx)

	lastUpdate := h.cache.LastUpdated()
	dataAge := h.now().Sub(lastUpdate)

	// Determine health status and HTTP code
	switch {
	case pingErr != nil:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case lastUpdate.IsZero():
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 48*time.Hour:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 25*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	storeStatus := "ok"
	if pingErr != nil {
		storeStatus = pingErr.Error()
	}

	data = map[string]any{
		"store":          storeStatus,
		"lots":           h.cache.Count(),
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
	}
	if lastUpdate.IsZero() {
		data["data_age_hours"] = nil
	}
	if next := h.NextSweep(); !next.IsZero() {
		data["next_sweep"] = next.Format(time.RFC3339)
	}

	return status, data, httpStatus
}

// NextSweep returns the next scheduled stock sweep, or the zero time when
// no scheduler is wired
func (h *HealthCheckerImpl) NextSweep() time.Time {
	if h.sweeps == nil {
		return time.Time{}
	}
	return h.sweeps.NextSweep()
}
