package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"busview.transitireland.org/internal/feed"
	"busview.transitireland.org/internal/logging"
	"busview.transitireland.org/internal/metrics"
	"busview.transitireland.org/transitdb"
)

// maxValidationRounds bounds the validate/refresh loop. After a completed
// refresh the reference set is as fresh as it gets, so a route still missing
// past this point is unknown to the feed publisher and the cycle fails
// rather than refreshing forever.
const maxValidationRounds = 3

// PollerConfig carries the scheduling knobs for the poll loop.
type PollerConfig struct {
	Interval   time.Duration // poll period
	RetryDelay time.Duration // wait between transport retries within a cycle
	MaxRetries int           // transport retries per cycle after the first attempt
	Location   *time.Location
}

// Poller drives the live feed poll cycle: fetch a snapshot, validate it
// against the committed reference set (refreshing the reference when stale),
// reconcile delays into absolute instants, and commit the batch as the new
// snapshot. A failed cycle is logged and retried on the next interval; it
// never stops the loop.
type Poller struct {
	manager *Manager
	live    feed.LiveFeed
	cfg     PollerConfig
	logger  *slog.Logger
	metrics *metrics.Collector

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewPoller(manager *Manager, live feed.LiveFeed, cfg PollerConfig, logger *slog.Logger, collector *metrics.Collector) *Poller {
	return &Poller{
		manager:      manager,
		live:         live,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "poller")),
		metrics:      collector,
		shutdownChan: make(chan struct{}),
	}
}

// Start runs one cycle immediately, then polls on the configured interval
// until Shutdown.
func (p *Poller) Start() {
	p.runCycleLogged()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.runCycleLogged()
			case <-p.shutdownChan:
				logging.LogOperation(p.logger, "shutting_down_poller")
				return
			}
		}
	}()
}

// Shutdown stops the poll loop and waits for an in-flight cycle to finish.
func (p *Poller) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdownChan)
		p.wg.Wait()
	})
}

func (p *Poller) runCycleLogged() {
	// Each cycle gets the full interval as its deadline, so a stalled fetch
	// times out instead of backing up subsequent intervals.
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Interval)
	defer cancel()

	start := time.Now()
	if p.metrics != nil {
		p.metrics.PollCycles.Inc()
	}

	if err := p.RunCycle(ctx); err != nil {
		if p.metrics != nil {
			p.metrics.PollFailures.Inc()
		}
		logging.LogError(p.logger, "poll cycle failed", err)
		return
	}

	if p.metrics != nil {
		p.metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
		p.metrics.LastSuccessfulPollUnix.Set(float64(time.Now().Unix()))
	}
}

// RunCycle executes one full poll cycle against the given context.
func (p *Poller) RunCycle(ctx context.Context) error {
	entities, err := p.fetchWithRetry(ctx)
	if err != nil {
		return err
	}

	if err := p.validate(ctx, entities); err != nil {
		return err
	}

	now := time.Now()
	vehicles, times := p.reconcileAll(ctx, entities, now)

	started, err := p.manager.RefreshSnapshot(ctx, vehicles, times)
	if err != nil {
		return err
	}
	if !started {
		logging.LogOperation(p.logger, "snapshot_refresh_already_running")
		return nil
	}

	logging.LogOperation(p.logger, "snapshot_committed",
		slog.Int("vehicles", len(vehicles)))
	return nil
}

// fetchWithRetry attempts the live fetch, retrying transport failures with a
// fixed delay. Retries respect shutdown and the cycle deadline; exhausting
// them fails this cycle only.
func (p *Poller) fetchWithRetry(ctx context.Context) ([]feed.TripEntity, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.LogOperation(p.logger, "retrying_live_fetch",
				slog.Int("attempt", attempt),
				slog.Duration("delay", p.cfg.RetryDelay))
			select {
			case <-time.After(p.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("live fetch: %w", errors.Join(ctx.Err(), lastErr))
			case <-p.shutdownChan:
				return nil, errors.New("poller shutting down")
			}
		}

		entities, err := p.live.Poll(ctx)
		if err == nil {
			return entities, nil
		}
		lastErr = err
		logging.LogError(p.logger, "live fetch failed", err)
	}
	return nil, fmt.Errorf("live fetch: %w", lastErr)
}

// validate checks every route referenced by the payload against the current
// reference set. An unresolved route triggers a reference refresh and a
// re-validation; the loop repeats until the payload validates or the refresh
// fails. The payload itself is never mutated. Before each check it waits out
// any in-flight reference refresh so validation never runs against a
// half-replaced reference set.
func (p *Poller) validate(ctx context.Context, entities []feed.TripEntity) error {
	routeIDs := make(map[string]struct{})
	for _, e := range entities {
		if e.TripUpdate == nil {
			continue
		}
		if id := e.TripUpdate.Trip.RouteID; id != "" {
			routeIDs[id] = struct{}{}
		}
	}

	for round := 0; round < maxValidationRounds; round++ {
		if err := p.manager.WaitForReferenceIdle(ctx); err != nil {
			return err
		}

		missing, err := p.firstUnknownRoute(ctx, routeIDs)
		if err != nil {
			return err
		}
		if missing == "" {
			return nil
		}

		logging.LogOperation(p.logger, "reference_out_of_date",
			slog.String("route_id", missing))
		started, err := p.manager.RefreshReference(ctx)
		if err != nil {
			return fmt.Errorf("reference refresh for route %s: %w", missing, err)
		}
		if !started {
			// Another refresh is in flight; the next round waits it out and
			// re-validates against whatever it committed.
			continue
		}
	}

	return fmt.Errorf("payload references routes unknown to the reference feed")
}

func (p *Poller) firstUnknownRoute(ctx context.Context, routeIDs map[string]struct{}) (string, error) {
	for id := range routeIDs {
		ok, err := p.manager.Store().RouteExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}
	return "", nil
}

// reconcileAll runs the delay reconciler over every entity, binding the
// schedule and stop-name lookups to the committed reference set. Entities
// without a trip update carry nothing to reconcile and are skipped.
func (p *Poller) reconcileAll(ctx context.Context, entities []feed.TripEntity, now time.Time) ([]transitdb.Vehicle, [][]transitdb.VehicleTime) {
	store := p.manager.Store()

	schedule := ScheduleLookup(func(tripID string, stopSequence int) (string, string, bool) {
		st, ok, err := store.ScheduledStopTime(ctx, tripID, stopSequence)
		if err != nil {
			logging.LogError(p.logger, "schedule lookup failed", err,
				slog.String("trip_id", tripID))
			return "", "", false
		}
		return st.ArrivalTime, st.DepartureTime, ok
	})
	names := NameLookup(func(stopID string) (string, bool) {
		name, ok, err := store.StopName(ctx, stopID)
		if err != nil {
			logging.LogError(p.logger, "stop name lookup failed", err,
				slog.String("stop_id", stopID))
			return "", false
		}
		return name, ok
	})

	var vehicles []transitdb.Vehicle
	var times [][]transitdb.VehicleTime
	for _, e := range entities {
		if e.TripUpdate == nil {
			logging.LogOperation(p.logger, "skipping_entity_without_trip_update",
				slog.String("entity_id", e.ID))
			continue
		}
		v, vt := Reconcile(e, schedule, names, now, p.cfg.Location, p.logger)
		vehicles = append(vehicles, v)
		times = append(times, vt)
	}
	return vehicles, times
}
