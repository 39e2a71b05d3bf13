package transitdb

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedReference(t *testing.T, client *Client) {
	t.Helper()
	ctx := context.Background()

	routes := "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
		"1,1,1,City Centre,3\n" +
		"2,1,2,Ringsend,3\n"
	_, err := client.Load(ctx, "routes", strings.NewReader(routes))
	require.NoError(t, err)

	stops := "stop_id,stop_name\ns1,Abbey Street\ns2,Broadstone\n"
	_, err = client.Load(ctx, "stops", strings.NewReader(stops))
	require.NoError(t, err)
}

func TestReplaceVehicles_Wholesale(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedReference(t, client)

	first := []Vehicle{
		{ID: "V1", RouteID: "1", Status: "SCHEDULED"},
		{ID: "V2", RouteID: "2", Status: "SCHEDULED"},
	}
	require.NoError(t, client.ReplaceVehicles(ctx, first, [][]VehicleTime{
		{{VehicleID: "V1", StopSequence: 1, StopID: "s1", RouteID: "1"}},
		nil,
	}))

	second := []Vehicle{{ID: "V3", RouteID: "1", Status: "ADDED"}}
	require.NoError(t, client.ReplaceVehicles(ctx, second, [][]VehicleTime{nil}))

	count, err := client.TableCount(ctx, "vehicles")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "each cycle replaces the previous one wholesale")

	vehicles, err := client.VehiclesForRoute(ctx, "1")
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "V3", vehicles[0].ID)

	timesCount, err := client.TableCount(ctx, "vehicle_times")
	require.NoError(t, err)
	assert.Equal(t, 0, timesCount, "previous cycle's stop times must not linger")
}

func TestVehicleTimes_FreshnessBoundary(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedReference(t, client)

	now := time.Now().Unix()
	mk := func(seq int, arrival sql.NullInt64) VehicleTime {
		return VehicleTime{VehicleID: "V1", StopSequence: seq, StopID: "s1", RouteID: "1", ArrivalTime: arrival}
	}

	times := []VehicleTime{
		mk(1, sql.NullInt64{Int64: now - 1, Valid: true}),
		mk(2, sql.NullInt64{Int64: now, Valid: true}),
		mk(3, sql.NullInt64{Int64: now + 1, Valid: true}),
		mk(4, sql.NullInt64{}),
	}
	vehicles := []Vehicle{{ID: "V1", RouteID: "1", Status: "SCHEDULED"}}
	require.NoError(t, client.ReplaceVehicles(ctx, vehicles, [][]VehicleTime{times}))

	upcoming, err := client.VehicleTimesForVehicle(ctx, "V1", now)
	require.NoError(t, err)
	require.Len(t, upcoming, 1, "only strictly future arrivals are upcoming")
	assert.Equal(t, 3, upcoming[0].StopSequence)

	all, err := client.VehicleTimesForVehicle(ctx, "V1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4, "unfiltered query returns every stop event")
}

func TestVehicleTimes_PreserveFeedOrder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedReference(t, client)

	// Feed ordering is kept as-is, not re-sorted by sequence.
	times := []VehicleTime{
		{VehicleID: "V1", StopSequence: 5, StopID: "s1", RouteID: "1"},
		{VehicleID: "V1", StopSequence: 2, StopID: "s2", RouteID: "1"},
	}
	vehicles := []Vehicle{{ID: "V1", RouteID: "1", Status: "SCHEDULED"}}
	require.NoError(t, client.ReplaceVehicles(ctx, vehicles, [][]VehicleTime{times}))

	all, err := client.VehicleTimesForVehicle(ctx, "V1", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 5, all[0].StopSequence)
	assert.Equal(t, 2, all[1].StopSequence)
}

func TestListRoutes_AggregatesVehicleSets(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedReference(t, client)

	vehicles := []Vehicle{
		{ID: "V1", RouteID: "1", Status: "SCHEDULED"},
		{ID: "V2", RouteID: "1", Status: "SCHEDULED"},
		{ID: "V3", RouteID: "2", Status: "SCHEDULED"},
	}
	require.NoError(t, client.ReplaceVehicles(ctx, vehicles, make([][]VehicleTime, 3)))

	routes, err := client.ListRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, []string{"V1", "V2"}, routes[0].VehicleIDs)
	assert.Equal(t, []string{"V3"}, routes[1].VehicleIDs)
}

func TestGetRoute_NotFound(t *testing.T) {
	client := newTestClient(t)
	seedReference(t, client)

	_, err := client.GetRoute(context.Background(), "99")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestRouteExists(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedReference(t, client)

	ok, err := client.RouteExists(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.RouteExists(ctx, "99")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStopName_Miss(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedReference(t, client)

	name, ok, err := client.StopName(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Abbey Street", name)

	_, ok, err = client.StopName(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok, "a miss is not an error")
}

func TestScheduledStopTime_Miss(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, ok, err := client.ScheduledStopTime(ctx, "t1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
