package transitdb

import (
	"database/sql"
	"fmt"
)

// tableSpec ties a table to its declared column order. The reference loader
// maps header-named feed fields onto this order, so feeds may reorder or add
// columns without touching the storage layout.
type tableSpec struct {
	name    string
	columns []string
	ddl     string
}

// Declared in foreign-key dependency order: routes and stops before trips,
// trips before stop_times, static tables before the live vehicle tables.
// Foreign keys are declared for documentation but not enforced by the engine;
// every refresh rewrites parent tables before their children, and referential
// integrity of live data is checked against the committed reference set
// before a snapshot is accepted.
var tables = []tableSpec{
	{
		name:    "routes",
		columns: []string{"route_id", "agency_id", "route_short_name", "route_long_name", "route_type"},
		ddl: `CREATE TABLE IF NOT EXISTS routes (
			route_id TEXT PRIMARY KEY,
			agency_id TEXT NOT NULL,
			route_short_name TEXT NOT NULL,
			route_long_name TEXT NOT NULL,
			route_type INTEGER NOT NULL
		);`,
	},
	{
		name:    "stops",
		columns: []string{"stop_id", "stop_name"},
		ddl: `CREATE TABLE IF NOT EXISTS stops (
			stop_id TEXT PRIMARY KEY,
			stop_name TEXT NOT NULL
		);`,
	},
	{
		name:    "trips",
		columns: []string{"trip_id", "route_id", "service_id", "trip_headsign", "direction_id"},
		ddl: `CREATE TABLE IF NOT EXISTS trips (
			trip_id TEXT PRIMARY KEY,
			route_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			trip_headsign TEXT NOT NULL,
			direction_id INTEGER NOT NULL,
			FOREIGN KEY (route_id) REFERENCES routes(route_id)
		);`,
	},
	{
		name: "stop_times",
		columns: []string{
			"trip_id", "arrival_time", "departure_time", "stop_id", "stop_sequence",
			"stop_headsign", "pickup_type", "drop_off_type", "timepoint",
		},
		ddl: `CREATE TABLE IF NOT EXISTS stop_times (
			trip_id TEXT NOT NULL,
			arrival_time TEXT NOT NULL,
			departure_time TEXT NOT NULL,
			stop_id TEXT NOT NULL,
			stop_sequence INTEGER NOT NULL,
			stop_headsign TEXT,
			pickup_type INTEGER,
			drop_off_type INTEGER,
			timepoint INTEGER,
			PRIMARY KEY (trip_id, stop_sequence),
			FOREIGN KEY (trip_id) REFERENCES trips(trip_id),
			FOREIGN KEY (stop_id) REFERENCES stops(stop_id)
		);`,
	},
	{
		// trip_id is explicitly nullable: the live feed occasionally carries a
		// vehicle with no trip assigned, apparently a service added outside of
		// the published schedule. That is valid data, not an error.
		name:    "vehicles",
		columns: []string{"vehicle_id", "trip_id", "start_time", "status", "route_id", "direction_id"},
		ddl: `CREATE TABLE IF NOT EXISTS vehicles (
			vehicle_id TEXT PRIMARY KEY,
			trip_id TEXT NULL,
			start_time INTEGER NULL,
			status TEXT NOT NULL,
			route_id TEXT NOT NULL,
			direction_id INTEGER NOT NULL,
			FOREIGN KEY (trip_id) REFERENCES trips(trip_id),
			FOREIGN KEY (route_id) REFERENCES routes(route_id)
		);`,
	},
	{
		name: "vehicle_times",
		columns: []string{
			"vehicle_id", "stop_sequence", "stop_id", "stop_name", "route_id", "trip_id",
			"schedule_relationship", "arrival_delay", "arrival_time", "departure_delay", "departure_time",
		},
		ddl: `CREATE TABLE IF NOT EXISTS vehicle_times (
			vehicle_id TEXT NOT NULL,
			stop_sequence INTEGER NOT NULL,
			stop_id TEXT NOT NULL,
			stop_name TEXT,
			route_id TEXT NOT NULL,
			trip_id TEXT NULL,
			schedule_relationship TEXT,
			arrival_delay INTEGER,
			arrival_time INTEGER,
			departure_delay INTEGER,
			departure_time INTEGER,
			PRIMARY KEY (vehicle_id, stop_sequence),
			FOREIGN KEY (vehicle_id) REFERENCES vehicles(vehicle_id),
			FOREIGN KEY (stop_id) REFERENCES stops(stop_id),
			FOREIGN KEY (route_id) REFERENCES routes(route_id),
			FOREIGN KEY (trip_id) REFERENCES trips(trip_id)
		);`,
	},
}

func tableByName(name string) (tableSpec, bool) {
	for _, t := range tables {
		if t.name == name {
			return t, true
		}
	}
	return tableSpec{}, false
}

func createTables(tx *sql.Tx) error {
	for _, t := range tables {
		if _, err := tx.Exec(t.ddl); err != nil {
			return fmt.Errorf("error creating table %s: %w", t.name, err)
		}
	}

	_, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trips_route_id ON trips(route_id);
		CREATE INDEX IF NOT EXISTS idx_stop_times_stop_id ON stop_times(stop_id);
		CREATE INDEX IF NOT EXISTS idx_vehicles_route_id ON vehicles(route_id);
		CREATE INDEX IF NOT EXISTS idx_vehicle_times_vehicle_id ON vehicle_times(vehicle_id);
	`)
	if err != nil {
		return fmt.Errorf("error creating indexes: %w", err)
	}
	return nil
}
