package transitdb

import "database/sql"

// Route is a transit route from the static reference feed
type Route struct {
	ID        string // route_id
	AgencyID  string // agency_id
	ShortName string // route_short_name
	LongName  string // route_long_name
	Type      int    // route_type
}

// Stop is a transit stop from the static reference feed
type Stop struct {
	ID   string // stop_id
	Name string // stop_name
}

// Trip is a scheduled journey from the static reference feed
type Trip struct {
	ID          string // trip_id
	RouteID     string // route_id
	ServiceID   string // service_id
	Headsign    string // trip_headsign
	DirectionID int    // direction_id
}

// StopTime is a scheduled arrival/departure at a stop. Arrival and departure
// are time-of-day strings whose hour component may exceed 23 for services
// running past midnight.
type StopTime struct {
	TripID        string         // trip_id
	ArrivalTime   string         // arrival_time (H:MM:SS, H may be >= 24)
	DepartureTime string         // departure_time
	StopID        string         // stop_id
	StopSequence  int            // stop_sequence
	StopHeadsign  sql.NullString // stop_headsign
	PickupType    sql.NullInt64  // pickup_type
	DropOffType   sql.NullInt64  // drop_off_type
	Timepoint     sql.NullInt64  // timepoint
}

// Vehicle is one live vehicle from the realtime feed, replaced wholesale
// every poll cycle. TripID is null for services added outside the schedule.
type Vehicle struct {
	ID          string         // vehicle_id
	TripID      sql.NullString // trip_id
	StartTime   sql.NullInt64  // start_time, unix seconds
	Status      string         // status (trip-level schedule_relationship)
	RouteID     string         // route_id
	DirectionID int            // direction_id
}

// VehicleTime is one reconciled live stop event for a vehicle. Arrival and
// departure instants are unix seconds; they stay null when neither an
// absolute feed time nor a usable delay+schedule pair was available.
type VehicleTime struct {
	VehicleID            string         // vehicle_id
	StopSequence         int            // stop_sequence
	StopID               string         // stop_id
	StopName             sql.NullString // stop_name, denormalized
	RouteID              string         // route_id
	TripID               sql.NullString // trip_id
	ScheduleRelationship string         // schedule_relationship
	ArrivalDelay         sql.NullInt64  // arrival_delay, seconds
	ArrivalTime          sql.NullInt64  // arrival_time, unix seconds
	DepartureDelay       sql.NullInt64  // departure_delay, seconds
	DepartureTime        sql.NullInt64  // departure_time, unix seconds
}

// RouteWithVehicles pairs a route with the ids of the vehicles currently
// serving it, from the committed snapshot.
type RouteWithVehicles struct {
	Route
	VehicleIDs []string
}
