package transit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"busview.transitireland.org/internal/feed"
	"busview.transitireland.org/internal/logging"
	"busview.transitireland.org/transitdb"
)

// ScheduleLookup resolves the scheduled arrival and departure time-of-day
// strings for a (trip, stop sequence) pair from the committed reference set.
type ScheduleLookup func(tripID string, stopSequence int) (arrivalTime, departureTime string, ok bool)

// NameLookup resolves a stop's display name from the committed reference set.
type NameLookup func(stopID string) (string, bool)

// Reconcile merges one raw vehicle update with the static schedule to produce
// a vehicle row and its live stop times with absolute wall-clock instants.
// It is a pure function over its inputs: the lookups are read-only accessors
// and "now" anchors delay-relative times to today in the configured zone.
//
// A vehicle with no trip_id is valid (a service added outside the schedule)
// and produces a row with a null trip id. A malformed time string fails only
// the affected field, never the record or the vehicle.
func Reconcile(entity feed.TripEntity, schedule ScheduleLookup, names NameLookup, now time.Time, loc *time.Location, logger *slog.Logger) (transitdb.Vehicle, []transitdb.VehicleTime) {
	trip := entity.TripUpdate.Trip

	vehicle := transitdb.Vehicle{
		ID:          entity.ID,
		TripID:      nullString(trip.TripID),
		Status:      trip.ScheduleRelationship,
		RouteID:     trip.RouteID,
		DirectionID: trip.DirectionID,
	}

	if instant, err := tripStartInstant(trip.StartDate, trip.StartTime, loc); err == nil {
		vehicle.StartTime = sql.NullInt64{Int64: instant, Valid: true}
	} else if trip.StartDate != "" || trip.StartTime != "" {
		// A missing date or time means an unscheduled vehicle and stays
		// silent; a malformed one is worth a log line.
		logging.LogError(logger, "invalid trip start", err,
			slog.String("vehicle_id", entity.ID),
			slog.String("start_date", trip.StartDate),
			slog.String("start_time", trip.StartTime))
	}

	var times []transitdb.VehicleTime
	for _, update := range entity.TripUpdate.StopTimeUpdate {
		vt := transitdb.VehicleTime{
			VehicleID:            entity.ID,
			StopSequence:         update.StopSequence,
			StopID:               update.StopID,
			RouteID:              trip.RouteID,
			TripID:               nullString(trip.TripID),
			ScheduleRelationship: update.ScheduleRelationship,
		}

		if name, ok := names(update.StopID); ok {
			vt.StopName = sql.NullString{String: name, Valid: true}
		}

		// The scheduled row is fetched at most once per update and shared by
		// the arrival and departure computations.
		var schedArrival, schedDeparture string
		var schedOK, schedLoaded bool
		lookup := func() (string, string, bool) {
			if !schedLoaded {
				schedLoaded = true
				if trip.TripID != "" {
					schedArrival, schedDeparture, schedOK = schedule(trip.TripID, update.StopSequence)
				}
			}
			return schedArrival, schedDeparture, schedOK
		}

		vt.ArrivalDelay, vt.ArrivalTime = resolveStopEvent(update.Arrival, now, loc, logger,
			entity.ID, update.StopSequence, "arrival",
			func() (string, bool) { a, _, ok := lookup(); return a, ok })
		vt.DepartureDelay, vt.DepartureTime = resolveStopEvent(update.Departure, now, loc, logger,
			entity.ID, update.StopSequence, "departure",
			func() (string, bool) { _, d, ok := lookup(); return d, ok })

		times = append(times, vt)
	}

	return vehicle, times
}

// resolveStopEvent turns one feed stop event into a delay and an absolute
// instant. An absolute feed time is used verbatim and wins over a supplied
// delay. With only a delay, the scheduled time-of-day is anchored to today
// in the configured zone and shifted by the delay. When neither is usable
// the instant stays null - it is never fabricated.
func resolveStopEvent(ev *feed.StopEvent, now time.Time, loc *time.Location, logger *slog.Logger,
	vehicleID string, stopSequence int, kind string, scheduled func() (string, bool)) (delay, instant sql.NullInt64) {
	if ev == nil {
		return
	}

	if ev.Delay != nil {
		delay = sql.NullInt64{Int64: *ev.Delay, Valid: true}
	}

	if ev.Time != nil {
		instant = sql.NullInt64{Int64: *ev.Time, Valid: true}
		return
	}

	if ev.Delay == nil {
		return
	}

	tod, ok := scheduled()
	if !ok {
		return
	}

	t, err := instantWithDelay(tod, *ev.Delay, now, loc)
	if err != nil {
		logging.LogError(logger, "invalid scheduled time", err,
			slog.String("vehicle_id", vehicleID),
			slog.Int("stop_sequence", stopSequence),
			slog.String("field", kind))
		return
	}
	instant = sql.NullInt64{Int64: t, Valid: true}
	return
}

// tripStartInstant combines a YYYYMMDD start date with an overnight-capable
// time-of-day into an absolute instant in the given zone.
func tripStartInstant(date, tod string, loc *time.Location) (int64, error) {
	if date == "" || tod == "" {
		return 0, fmt.Errorf("date or time empty")
	}
	if len(date) != 8 {
		return 0, fmt.Errorf("invalid start date %q", date)
	}

	year, err := strconv.Atoi(date[0:4])
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q", date)
	}
	month, err := strconv.Atoi(date[4:6])
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q", date)
	}
	day, err := strconv.Atoi(date[6:8])
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q", date)
	}

	dayOffset, hour, min, sec, err := splitTimeOfDay(tod)
	if err != nil {
		return 0, err
	}

	t := time.Date(year, time.Month(month), day+dayOffset, hour, min, sec, 0, loc)
	return t.Unix(), nil
}

// instantWithDelay resolves a scheduled time-of-day string against today in
// the given zone and applies a delay in seconds. An hour of 24 or more lands
// on the correct following calendar day.
func instantWithDelay(tod string, delaySeconds int64, now time.Time, loc *time.Location) (int64, error) {
	dayOffset, hour, min, sec, err := splitTimeOfDay(tod)
	if err != nil {
		return 0, err
	}

	local := now.In(loc)
	t := time.Date(local.Year(), local.Month(), local.Day()+dayOffset, hour, min, sec, 0, loc)
	return t.Add(time.Duration(delaySeconds) * time.Second).Unix(), nil
}

// splitTimeOfDay decomposes an H:MM:SS string into a day offset and a wall
// clock time: day offset = H/24, wall hour = H mod 24.
func splitTimeOfDay(tod string) (dayOffset, hour, min, sec int, err error) {
	parts := strings.Split(tod, ":")
	if len(parts) != 3 {
		return 0, 0, 0, 0, fmt.Errorf("invalid time of day %q", tod)
	}

	rawHour, err := strconv.Atoi(parts[0])
	if err != nil || rawHour < 0 {
		return 0, 0, 0, 0, fmt.Errorf("invalid time of day %q", tod)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, 0, 0, fmt.Errorf("invalid time of day %q", tod)
	}
	sec, err = strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return 0, 0, 0, 0, fmt.Errorf("invalid time of day %q", tod)
	}

	return rawHour / 24, rawHour % 24, min, sec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
