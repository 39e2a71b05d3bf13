package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"busview.transitireland.org/internal/feed"
	"busview.transitireland.org/internal/logging"
	"busview.transitireland.org/internal/metrics"
	"busview.transitireland.org/transitdb"
)

// ErrNotReady is returned by queries before the store has completed its
// initial reference load and first live snapshot.
var ErrNotReady = errors.New("store has not completed its initial load")

// referenceResources maps archive resource names to their tables, in
// foreign-key dependency order: routes and stops load before trips, trips
// before stop_times.
var referenceResources = []struct {
	resource string
	table    string
}{
	{"routes.txt", "routes"},
	{"stops.txt", "stops"},
	{"trips.txt", "trips"},
	{"stop_times.txt", "stop_times"},
}

// Manager owns the current dataset. All mutation goes through its two
// writer entry points, RefreshReference and RefreshSnapshot, each serialized
// by its own gate; readers only ever see committed state.
type Manager struct {
	store   *transitdb.Client
	fetcher feed.ReferenceFetcher
	logger  *slog.Logger
	metrics *metrics.Collector

	referenceGate refreshGate
	snapshotGate  refreshGate

	referenceLoaded atomic.Bool
	snapshotLoaded  atomic.Bool
}

func NewManager(store *transitdb.Client, fetcher feed.ReferenceFetcher, logger *slog.Logger, collector *metrics.Collector) *Manager {
	return &Manager{
		store:   store,
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "manager")),
		metrics: collector,
	}
}

// Store exposes the underlying client for read-only lookups.
func (m *Manager) Store() *transitdb.Client {
	return m.store
}

// Ready reports whether both table sets have been populated at least once.
func (m *Manager) Ready() bool {
	return m.referenceLoaded.Load() && m.snapshotLoaded.Load()
}

// IsReferenceRefreshing reports whether a reference refresh is in flight.
func (m *Manager) IsReferenceRefreshing() bool {
	return m.referenceGate.isRunning()
}

// WaitForReferenceIdle blocks until no reference refresh is in flight, so a
// caller never validates a payload against a half-replaced reference set.
func (m *Manager) WaitForReferenceIdle(ctx context.Context) error {
	return m.referenceGate.wait(ctx)
}

// RefreshReference fetches the static archive and reloads every reference
// table. The bool result reports whether this call performed the refresh:
// false with a nil error means another reference refresh was already in
// flight and this request was a no-op.
//
// A parse error in one resource aborts only that resource's load; siblings
// still load, and the combined error is returned. A resource that fails
// mid-stream may be left partially populated (see Client.Load); on error the
// reference set is not marked freshly loaded.
func (m *Manager) RefreshReference(ctx context.Context) (bool, error) {
	if !m.referenceGate.tryAcquire() {
		return false, nil
	}
	defer m.referenceGate.release()

	start := time.Now()
	logging.LogOperation(m.logger, "reference_refresh_started")

	archive, err := m.fetcher.Fetch(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.ReferenceRefreshErrs.Inc()
		}
		return true, fmt.Errorf("fetching reference archive: %w", err)
	}
	defer logging.SafeCloseWithLogging(archive, m.logger, "reference_archive")

	var errs []error
	for _, res := range referenceResources {
		stream, err := archive.Open(res.resource)
		if err != nil {
			errs = append(errs, &transitdb.LoadError{Resource: res.resource, Err: err})
			continue
		}

		rows, err := m.store.Load(ctx, res.table, stream)
		logging.SafeCloseWithLogging(stream, m.logger, res.resource)
		if err != nil {
			errs = append(errs, &transitdb.LoadError{Resource: res.resource, Err: err})
			continue
		}

		if m.metrics != nil {
			m.metrics.ReferenceRowsLoaded.WithLabelValues(res.table).Add(float64(rows))
		}
		logging.LogOperation(m.logger, "reference_table_refreshed",
			slog.String("table", res.table),
			slog.Int64("rows", rows))
	}

	if len(errs) > 0 {
		if m.metrics != nil {
			m.metrics.ReferenceRefreshErrs.Inc()
		}
		return true, errors.Join(errs...)
	}

	m.referenceLoaded.Store(true)
	if m.metrics != nil {
		m.metrics.ReferenceRefreshes.Inc()
		m.metrics.ReferenceLoadDuration.Observe(time.Since(start).Seconds())
	}
	logging.LogOperation(m.logger, "reference_refresh_completed",
		slog.Duration("duration", time.Since(start)))
	return true, nil
}

// RefreshSnapshot commits a reconciled batch as the new live snapshot,
// replacing the previous cycle wholesale in one transaction. The bool result
// reports whether this call performed the refresh; false with a nil error
// means another snapshot refresh was already in flight. Snapshot and
// reference refreshes are independent and may overlap each other.
func (m *Manager) RefreshSnapshot(ctx context.Context, vehicles []transitdb.Vehicle, times [][]transitdb.VehicleTime) (bool, error) {
	if !m.snapshotGate.tryAcquire() {
		return false, nil
	}
	defer m.snapshotGate.release()

	if err := m.store.ReplaceVehicles(ctx, vehicles, times); err != nil {
		if m.metrics != nil {
			m.metrics.SnapshotRefreshErrs.Inc()
		}
		return true, fmt.Errorf("replacing live snapshot: %w", err)
	}

	m.snapshotLoaded.Store(true)
	if m.metrics != nil {
		m.metrics.SnapshotRefreshes.Inc()
		m.metrics.LiveVehicles.Set(float64(len(vehicles)))
	}
	return true, nil
}

// RouteDetail is the query surface's composite answer for one route.
type RouteDetail struct {
	Route              transitdb.Route
	Vehicles           []transitdb.Vehicle
	StopTimesByVehicle map[string][]transitdb.VehicleTime
}

// ListRoutes returns every route with its current vehicle id set. Returns
// ErrNotReady until the initial load has completed.
func (m *Manager) ListRoutes(ctx context.Context) ([]transitdb.RouteWithVehicles, error) {
	if !m.Ready() {
		return nil, ErrNotReady
	}
	return m.store.ListRoutes(ctx)
}

// GetRouteDetail returns one route's vehicles and their upcoming stop times:
// entries whose resolved arrival instant is at or before now are excluded,
// as are entries with no resolved arrival at all.
func (m *Manager) GetRouteDetail(ctx context.Context, routeID string, now time.Time) (*RouteDetail, error) {
	return m.routeDetail(ctx, routeID, now.Unix())
}

// GetFullRouteDetail is GetRouteDetail without the freshness filter.
func (m *Manager) GetFullRouteDetail(ctx context.Context, routeID string) (*RouteDetail, error) {
	return m.routeDetail(ctx, routeID, 0)
}

func (m *Manager) routeDetail(ctx context.Context, routeID string, after int64) (*RouteDetail, error) {
	if !m.Ready() {
		return nil, ErrNotReady
	}

	route, err := m.store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	vehicles, err := m.store.VehiclesForRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	detail := &RouteDetail{
		Route:              route,
		Vehicles:           vehicles,
		StopTimesByVehicle: make(map[string][]transitdb.VehicleTime, len(vehicles)),
	}
	for _, v := range vehicles {
		times, err := m.store.VehicleTimesForVehicle(ctx, v.ID, after)
		if err != nil {
			return nil, err
		}
		detail.StopTimesByVehicle[v.ID] = times
	}
	return detail, nil
}
