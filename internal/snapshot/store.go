// Package snapshot persists the latest known vehicle and message state so a
// restarted gateway can answer message queries immediately. Only the latest
// record per vehicle and message name is kept.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"frc/internal/fleet"
)

// Backend names accepted by Open.
const (
	BackendNone     = "none"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures the snapshot backend.
type Config struct {
	Backend    string
	SQLitePath string
	Postgres   PostgresConfig
}

// VehicleRow is a stored vehicle identity.
type VehicleRow struct {
	ID    int
	Name  string
	Color string
}

// MessageRow is a stored latest message of one vehicle.
type MessageRow struct {
	ACID   int
	Record fleet.MessageRecord
}

// Snapshot is everything a store holds.
type Snapshot struct {
	Vehicles []VehicleRow
	Messages []MessageRow
}

// Store is a latest-value state store.
type Store interface {
	SaveVehicle(ctx context.Context, v VehicleRow) error
	SaveMessage(ctx context.Context, acID int, rec fleet.MessageRecord) error
	Load(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Open opens the configured backend. It returns a nil Store for
// BackendNone.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendSQLite:
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
}

// Restore loads the stored state into d. Stored vehicles that d does not
// know are recreated with their stored name and color; vehicles d already
// has keep their configured identity. It returns the number of messages
// restored.
func Restore(ctx context.Context, s Store, d *fleet.Directory) (int, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}

	for _, v := range snap.Vehicles {
		d.UpsertVehicle(v.ID, v.Name, v.Color)
	}
	n := 0
	for _, m := range snap.Messages {
		d.UpsertVehicle(m.ACID, fleet.Unknown, fleet.Unknown)
		if err := d.AddMessage(m.ACID, m.Record); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// SaveDirectory stores the identity of every vehicle in d.
func SaveDirectory(ctx context.Context, s Store, d *fleet.Directory) error {
	for _, id := range d.VehicleIDs() {
		v, ok := d.Vehicle(id)
		if !ok {
			continue
		}
		if err := s.SaveVehicle(ctx, VehicleRow{ID: v.ID, Name: v.Name, Color: v.Color}); err != nil {
			return err
		}
	}
	return nil
}

func encodeFields(values []any) (string, error) {
	if values == nil {
		values = []any{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func decodeRecord(class, name, fields, raw string, lastSeen time.Time) (fleet.MessageRecord, error) {
	rec := fleet.MessageRecord{
		Class:    class,
		Name:     name,
		LastSeen: lastSeen.UTC(),
	}
	if err := json.Unmarshal([]byte(fields), &rec.FieldValues); err != nil {
		return rec, fmt.Errorf("decode fields of %s: %w", name, err)
	}
	if raw != "" {
		rec.Raw = json.RawMessage(raw)
	}
	return rec, nil
}
