package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busview.transitireland.org/internal/app"
	"busview.transitireland.org/internal/appconf"
	"busview.transitireland.org/internal/feed"
	"busview.transitireland.org/internal/transit"
	"busview.transitireland.org/transitdb"
)

type fixtureArchive struct {
	files map[string]string
}

func (a *fixtureArchive) Open(name string) (io.ReadCloser, error) {
	content, ok := a.files[name]
	if !ok {
		return nil, errors.New("resource not found: " + name)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (a *fixtureArchive) Close() error { return nil }

type fixtureFetcher struct {
	files map[string]string
}

func (f *fixtureFetcher) Fetch(ctx context.Context) (feed.Archive, error) {
	return &fixtureArchive{files: f.files}, nil
}

func newTestAPI(t *testing.T) *api {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := transitdb.NewClient(transitdb.NewConfig(":memory:", appconf.Test, false), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fetcher := &fixtureFetcher{files: map[string]string{
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"1,1,1,City Centre,3\n",
		"stops.txt": "stop_id,stop_name\ns1,Abbey Street\n",
		"trips.txt": "trip_id,route_id,service_id,trip_headsign,direction_id\n" +
			"t1,1,wk,City Centre,0\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,08:00:00,08:01:00,s1,1\n",
	}}
	manager := transit.NewManager(store, fetcher, logger, nil)

	return newAPI(&app.Application{
		Logger:  logger,
		Manager: manager,
	})
}

func loadFixtures(t *testing.T, a *api) {
	t.Helper()
	ctx := context.Background()

	_, err := a.Manager.RefreshReference(ctx)
	require.NoError(t, err)

	vehicles := []transitdb.Vehicle{{
		ID:      "V1",
		TripID:  sql.NullString{String: "t1", Valid: true},
		Status:  "SCHEDULED",
		RouteID: "1",
	}}
	times := [][]transitdb.VehicleTime{{{
		VehicleID:    "V1",
		StopSequence: 1,
		StopID:       "s1",
		StopName:     sql.NullString{String: "Abbey Street", Valid: true},
		RouteID:      "1",
		ArrivalTime:  sql.NullInt64{Int64: time.Now().Add(time.Hour).Unix(), Valid: true},
	}}}
	_, err = a.Manager.RefreshSnapshot(ctx, vehicles, times)
	require.NoError(t, err)
}

func doRequest(a *api, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthHandler_BeforeAndAfterLoad(t *testing.T) {
	a := newTestAPI(t)

	rec := doRequest(a, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Initializing data...")

	loadFixtures(t, a)

	rec = doRequest(a, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)
}

func TestListRoutesHandler_NotReady(t *testing.T) {
	a := newTestAPI(t)

	rec := doRequest(a, http.MethodGet, "/routes")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "still loading")
}

func TestListRoutesHandler_ReturnsRoutesWithVehicles(t *testing.T) {
	a := newTestAPI(t)
	loadFixtures(t, a)

	rec := doRequest(a, http.MethodGet, "/routes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"route_id":"1"`)
	assert.Contains(t, rec.Body.String(), `"vehicle_ids":["V1"]`)
}

func TestRouteDetailHandler_UnknownRoute(t *testing.T) {
	a := newTestAPI(t)
	loadFixtures(t, a)

	rec := doRequest(a, http.MethodGet, "/routes/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "route not found")
}

func TestRouteDetailHandler_ReturnsVehicleTimes(t *testing.T) {
	a := newTestAPI(t)
	loadFixtures(t, a)

	rec := doRequest(a, http.MethodGet, "/routes/1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"vehicle_id":"V1"`)
	assert.Contains(t, body, `"stop_name":"Abbey Street"`)
	assert.Contains(t, body, `"departure_time":null`)
}
