package snapshot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frc/internal/fleet"
)

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func gps(alt float64, at time.Time) fleet.MessageRecord {
	return fleet.MessageRecord{
		Class:       "telemetry",
		Name:        "GPS",
		FieldValues: []any{3.0, alt},
		LastSeen:    at,
		Raw:         json.RawMessage(`{"ac_id":3,"msg_class":"telemetry","msg_name":"GPS","fields":{"mode":3,"alt":` + jsonNum(alt) + `}}`),
	}
}

func jsonNum(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	at := time.Date(2026, 10, 15, 12, 0, 0, 500, time.UTC)
	require.NoError(t, s.SaveVehicle(ctx, VehicleRow{ID: 3, Name: "Bixler", Color: "red"}))
	require.NoError(t, s.SaveVehicle(ctx, VehicleRow{ID: 3, Name: "Bixler", Color: "green"}))
	require.NoError(t, s.SaveMessage(ctx, 3, gps(100, at)))
	require.NoError(t, s.SaveMessage(ctx, 3, gps(120, at.Add(time.Second))))
	require.NoError(t, s.SaveMessage(ctx, 42, fleet.MessageRecord{Class: "telemetry", Name: "ALIVE", LastSeen: at}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, []VehicleRow{{ID: 3, Name: "Bixler", Color: "green"}}, snap.Vehicles)
	require.Len(t, snap.Messages, 2, "latest value only")

	first := snap.Messages[0]
	assert.Equal(t, 3, first.ACID)
	assert.Equal(t, []any{3.0, 120.0}, first.Record.FieldValues)
	assert.True(t, at.Add(time.Second).Equal(first.Record.LastSeen))
	assert.JSONEq(t, string(gps(120, at).Raw), string(first.Record.Raw))

	alive := snap.Messages[1]
	assert.Equal(t, 42, alive.ACID)
	assert.Equal(t, []any{}, alive.Record.FieldValues)
	assert.Nil(t, alive.Record.Raw)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveVehicle(ctx, VehicleRow{ID: 3, Name: "Stale", Color: "grey"}))
	require.NoError(t, s.SaveVehicle(ctx, VehicleRow{ID: 7, Name: "Scout", Color: "blue"}))
	require.NoError(t, s.SaveMessage(ctx, 3, gps(100, at)))
	require.NoError(t, s.SaveMessage(ctx, 9, gps(50, at)))

	d := fleet.NewDirectory()
	d.UpsertVehicle(3, "Bixler", "red")

	n, err := Restore(ctx, s, d)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{3, 7, 9}, d.VehicleIDs())

	v, _ := d.Vehicle(3)
	assert.Equal(t, "Bixler", v.Name, "configured identity wins")
	rec, err := d.Message(3, "GPS")
	require.NoError(t, err)
	assert.Equal(t, []any{3.0, 100.0}, rec.FieldValues)

	scout, _ := d.Vehicle(7)
	assert.Equal(t, "Scout", scout.Name)

	orphan, _ := d.Vehicle(9)
	assert.Equal(t, fleet.Unknown, orphan.Name)
}

func TestSaveDirectory(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	d := fleet.NewDirectory()
	d.UpsertVehicle(5, "Microjet", "blue")
	d.UpsertVehicle(3, "Bixler", "red")
	require.NoError(t, SaveDirectory(ctx, s, d))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []VehicleRow{
		{ID: 3, Name: "Bixler", Color: "red"},
		{ID: 5, Name: "Microjet", Color: "blue"},
	}, snap.Vehicles)
}

func TestOpenBackends(t *testing.T) {
	s, err := Open(context.Background(), Config{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(context.Background(), Config{Backend: "redis"})
	assert.Error(t, err)

	s, err = Open(context.Background(), Config{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
