package transitdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"busview.transitireland.org/internal/logging"
)

// ListRoutes returns every route in the committed reference set together
// with the ids of the vehicles currently serving it.
func (c *Client) ListRoutes(ctx context.Context) ([]RouteWithVehicles, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT route_id, agency_id, route_short_name, route_long_name, route_type
		FROM routes ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying routes: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows, c.logger, "list_routes")

	var routes []RouteWithVehicles
	byID := make(map[string]int)
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.AgencyID, &r.ShortName, &r.LongName, &r.Type); err != nil {
			return nil, fmt.Errorf("error scanning route: %w", err)
		}
		byID[r.ID] = len(routes)
		routes = append(routes, RouteWithVehicles{Route: r})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Vehicle ids are aggregated as a set-valued relation keyed by route;
	// the snapshot's primary key already guarantees one row per vehicle.
	vrows, err := c.DB.QueryContext(ctx, `SELECT vehicle_id, route_id FROM vehicles ORDER BY vehicle_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying vehicles: %w", err)
	}
	defer logging.SafeCloseWithLogging(vrows, c.logger, "list_routes_vehicles")

	for vrows.Next() {
		var vehicleID, routeID string
		if err := vrows.Scan(&vehicleID, &routeID); err != nil {
			return nil, fmt.Errorf("error scanning vehicle: %w", err)
		}
		if i, ok := byID[routeID]; ok {
			routes[i].VehicleIDs = append(routes[i].VehicleIDs, vehicleID)
		}
	}
	return routes, vrows.Err()
}

// GetRoute returns one route or ErrRouteNotFound.
func (c *Client) GetRoute(ctx context.Context, routeID string) (Route, error) {
	var r Route
	err := c.DB.QueryRowContext(ctx, `
		SELECT route_id, agency_id, route_short_name, route_long_name, route_type
		FROM routes WHERE route_id = ?`, routeID).
		Scan(&r.ID, &r.AgencyID, &r.ShortName, &r.LongName, &r.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return Route{}, ErrRouteNotFound
	}
	if err != nil {
		return Route{}, fmt.Errorf("error querying route %s: %w", routeID, err)
	}
	return r, nil
}

// RouteExists reports whether a route is present in the committed reference set.
func (c *Client) RouteExists(ctx context.Context, routeID string) (bool, error) {
	var one int
	err := c.DB.QueryRowContext(ctx, `SELECT 1 FROM routes WHERE route_id = ?`, routeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking route %s: %w", routeID, err)
	}
	return true, nil
}

// StopName resolves a stop's display name. A miss is reported via ok=false,
// not an error: the affected record keeps a null name.
func (c *Client) StopName(ctx context.Context, stopID string) (string, bool, error) {
	var name string
	err := c.DB.QueryRowContext(ctx, `SELECT stop_name FROM stops WHERE stop_id = ?`, stopID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error querying stop %s: %w", stopID, err)
	}
	return name, true, nil
}

// ScheduledStopTime resolves the scheduled stop time for a trip and stop
// sequence. A miss is reported via ok=false.
func (c *Client) ScheduledStopTime(ctx context.Context, tripID string, stopSequence int) (StopTime, bool, error) {
	var st StopTime
	err := c.DB.QueryRowContext(ctx, `
		SELECT trip_id, arrival_time, departure_time, stop_id, stop_sequence,
			stop_headsign, pickup_type, drop_off_type, timepoint
		FROM stop_times WHERE trip_id = ? AND stop_sequence = ?`, tripID, stopSequence).
		Scan(&st.TripID, &st.ArrivalTime, &st.DepartureTime, &st.StopID, &st.StopSequence,
			&st.StopHeadsign, &st.PickupType, &st.DropOffType, &st.Timepoint)
	if errors.Is(err, sql.ErrNoRows) {
		return StopTime{}, false, nil
	}
	if err != nil {
		return StopTime{}, false, fmt.Errorf("error querying stop time %s/%d: %w", tripID, stopSequence, err)
	}
	return st, true, nil
}

// VehiclesForRoute returns the committed snapshot's vehicles on a route.
func (c *Client) VehiclesForRoute(ctx context.Context, routeID string) ([]Vehicle, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT vehicle_id, trip_id, start_time, status, route_id, direction_id
		FROM vehicles WHERE route_id = ? ORDER BY vehicle_id`, routeID)
	if err != nil {
		return nil, fmt.Errorf("error querying vehicles for route %s: %w", routeID, err)
	}
	defer logging.SafeCloseWithLogging(rows, c.logger, "vehicles_for_route")

	var vehicles []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.TripID, &v.StartTime, &v.Status, &v.RouteID, &v.DirectionID); err != nil {
			return nil, fmt.Errorf("error scanning vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// VehicleTimesForVehicle returns a vehicle's reconciled stop events in feed
// order. When after is non-zero, only events whose resolved arrival instant
// is strictly later are returned; events with no resolved arrival are
// treated as not upcoming.
func (c *Client) VehicleTimesForVehicle(ctx context.Context, vehicleID string, after int64) ([]VehicleTime, error) {
	query := `
		SELECT vehicle_id, stop_sequence, stop_id, stop_name, route_id, trip_id,
			schedule_relationship, arrival_delay, arrival_time, departure_delay, departure_time
		FROM vehicle_times WHERE vehicle_id = ?`
	args := []any{vehicleID}
	if after != 0 {
		query += ` AND arrival_time > ?`
		args = append(args, after)
	}
	query += ` ORDER BY rowid`

	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying vehicle times for %s: %w", vehicleID, err)
	}
	defer logging.SafeCloseWithLogging(rows, c.logger, "vehicle_times_for_vehicle")

	var times []VehicleTime
	for rows.Next() {
		var vt VehicleTime
		if err := rows.Scan(&vt.VehicleID, &vt.StopSequence, &vt.StopID, &vt.StopName, &vt.RouteID,
			&vt.TripID, &vt.ScheduleRelationship, &vt.ArrivalDelay, &vt.ArrivalTime,
			&vt.DepartureDelay, &vt.DepartureTime); err != nil {
			return nil, fmt.Errorf("error scanning vehicle time: %w", err)
		}
		times = append(times, vt)
	}
	return times, rows.Err()
}

// ReplaceVehicles swaps in a new live snapshot in one transaction: the
// previous cycle's vehicles and vehicle times are deleted and the new batch
// inserted, so a concurrent reader sees either the old cycle or the new one,
// never a mix. On any failure the transaction rolls back and the previous
// snapshot stands.
func (c *Client) ReplaceVehicles(ctx context.Context, vehicles []Vehicle, times [][]VehicleTime) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, c.logger, "replace_vehicles")

	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicle_times`); err != nil {
		return fmt.Errorf("error truncating vehicle_times: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicles`); err != nil {
		return fmt.Errorf("error truncating vehicles: %w", err)
	}

	vehicleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vehicles (vehicle_id, trip_id, start_time, status, route_id, direction_id)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing vehicle statement: %w", err)
	}
	defer vehicleStmt.Close() // nolint:errcheck

	timeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vehicle_times (vehicle_id, stop_sequence, stop_id, stop_name, route_id, trip_id,
			schedule_relationship, arrival_delay, arrival_time, departure_delay, departure_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing vehicle time statement: %w", err)
	}
	defer timeStmt.Close() // nolint:errcheck

	for i, v := range vehicles {
		if _, err := vehicleStmt.ExecContext(ctx,
			v.ID, v.TripID, v.StartTime, v.Status, v.RouteID, v.DirectionID); err != nil {
			return fmt.Errorf("error inserting vehicle %s: %w", v.ID, err)
		}

		if i >= len(times) {
			continue
		}
		for _, vt := range times[i] {
			if _, err := timeStmt.ExecContext(ctx,
				vt.VehicleID, vt.StopSequence, vt.StopID, vt.StopName, vt.RouteID, vt.TripID,
				vt.ScheduleRelationship, vt.ArrivalDelay, vt.ArrivalTime,
				vt.DepartureDelay, vt.DepartureTime); err != nil {
				return fmt.Errorf("error inserting vehicle time %s/%d: %w", vt.VehicleID, vt.StopSequence, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}
