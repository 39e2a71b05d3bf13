package transitdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busview.transitireland.org/internal/appconf"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(NewConfig(":memory:", appconf.Test, false), logger)
	require.NoError(t, err, "NewClient should succeed with in-memory config")
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestNewClient_TestEnvRequiresMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(NewConfig("/tmp/busview_test.sqlite", appconf.Test, false), logger)
	assert.Error(t, err, "NewClient should reject a file-backed test database")
	assert.Nil(t, client)
}

func TestLoad_RoutesRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	csv := "\ufeffroute_id,agency_id,route_short_name,route_long_name,route_type\n" +
		`1,1,1,"City Centre",3` + "\n"

	count, err := client.Load(ctx, "routes", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	routes, err := client.ListRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "1", routes[0].ID)
	assert.Equal(t, "1", routes[0].AgencyID)
	assert.Equal(t, "1", routes[0].ShortName)
	assert.Equal(t, "City Centre", routes[0].LongName)
	assert.Equal(t, 3, routes[0].Type)
}

func TestLoad_HeaderOrderIndependent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// Feed column order differs from the storage layout.
	csv := "route_type,route_long_name,route_id,agency_id,route_short_name\n" +
		"3,Airport Express,747,2,747\n"

	_, err := client.Load(ctx, "routes", strings.NewReader(csv))
	require.NoError(t, err)

	route, err := client.GetRoute(ctx, "747")
	require.NoError(t, err)
	assert.Equal(t, "2", route.AgencyID)
	assert.Equal(t, "747", route.ShortName)
	assert.Equal(t, "Airport Express", route.LongName)
	assert.Equal(t, 3, route.Type)
}

func TestLoad_MissingOptionalColumnStoredAsNull(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// stop_headsign, pickup_type, drop_off_type and timepoint are absent.
	csv := "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"t1,08:00:00,08:01:00,s1,1\n"

	count, err := client.Load(ctx, "stop_times", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	st, ok, err := client.ScheduledStopTime(ctx, "t1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "08:00:00", st.ArrivalTime)
	assert.False(t, st.StopHeadsign.Valid, "absent column should load as NULL")
	assert.False(t, st.PickupType.Valid)
}

func TestLoad_TruncatesPreviousContents(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := "stop_id,stop_name\nA,Abbey Street\nB,Broadstone\n"
	_, err := client.Load(ctx, "stops", strings.NewReader(first))
	require.NoError(t, err)

	second := "stop_id,stop_name\nC,Connolly\n"
	count, err := client.Load(ctx, "stops", strings.NewReader(second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	total, err := client.TableCount(ctx, "stops")
	require.NoError(t, err)
	assert.Equal(t, 1, total, "reload should replace, not append")

	_, ok, err := client.StopName(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok, "rows from the previous load should be gone")
}

func TestLoad_MidStreamFailureKeepsCommittedBatches(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// 1499 good rows, then a row with the wrong field count. The parse error
	// rolls back the in-flight second batch; the first 1000 rows stay
	// committed. Partial population on failure is the documented tradeoff.
	var sb strings.Builder
	sb.WriteString("stop_id,stop_name\n")
	for i := 0; i < 1499; i++ {
		fmt.Fprintf(&sb, "stop-%d,Stop %d\n", i, i)
	}
	sb.WriteString("bad-row-only-one-field\n")

	count, err := client.Load(ctx, "stops", strings.NewReader(sb.String()))
	assert.Error(t, err, "malformed row should abort the load")
	assert.Equal(t, int64(1000), count)

	total, err := client.TableCount(ctx, "stops")
	require.NoError(t, err)
	assert.Equal(t, 1000, total, "only fully committed batches should be visible")
}

func TestLoad_FailureBeforeFirstCommitKeepsOldTable(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	good := "stop_id,stop_name\nA,Abbey Street\nB,Broadstone\n"
	_, err := client.Load(ctx, "stops", strings.NewReader(good))
	require.NoError(t, err)

	// The truncate shares the first batch's transaction, so a failure before
	// the first commit must leave the previous contents authoritative.
	bad := "stop_id,stop_name\nbad-row-only-one-field\n"
	_, err = client.Load(ctx, "stops", strings.NewReader(bad))
	assert.Error(t, err)

	total, err := client.TableCount(ctx, "stops")
	require.NoError(t, err)
	assert.Equal(t, 2, total, "previous contents should survive a failed reload")
}

func TestLoad_UnknownTable(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Load(context.Background(), "nope", strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestLoad_EmptyResource(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Load(context.Background(), "stops", strings.NewReader(""))
	assert.Error(t, err)
}
