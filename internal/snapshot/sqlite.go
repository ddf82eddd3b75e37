package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"frc/internal/fleet"
)

// SQLiteStore keeps the snapshot in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite snapshot at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer; WAL lets HTTP-side reads proceed during ingest.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vehicles (
	ac_id INTEGER PRIMARY KEY,
	name  TEXT NOT NULL,
	color TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	ac_id     INTEGER NOT NULL,
	name      TEXT NOT NULL,
	class     TEXT NOT NULL,
	fields    TEXT NOT NULL,
	raw       TEXT,
	last_seen TEXT NOT NULL,
	PRIMARY KEY (ac_id, name)
);
`

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveVehicle inserts or updates a vehicle identity.
func (s *SQLiteStore) SaveVehicle(ctx context.Context, v VehicleRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (ac_id, name, color) VALUES (?, ?, ?)
		ON CONFLICT(ac_id) DO UPDATE SET name = excluded.name, color = excluded.color`,
		v.ID, v.Name, v.Color)
	if err != nil {
		return fmt.Errorf("save vehicle %d: %w", v.ID, err)
	}
	return nil
}

// SaveMessage replaces the stored latest message of (acID, rec.Name).
func (s *SQLiteStore) SaveMessage(ctx context.Context, acID int, rec fleet.MessageRecord) error {
	fields, err := encodeFields(rec.FieldValues)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (ac_id, name, class, fields, raw, last_seen) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ac_id, name) DO UPDATE SET
			class = excluded.class,
			fields = excluded.fields,
			raw = excluded.raw,
			last_seen = excluded.last_seen`,
		acID, rec.Name, rec.Class, fields, string(rec.Raw), rec.LastSeen.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save message %d/%s: %w", acID, rec.Name, err)
	}
	return nil
}

// Load reads every stored vehicle and message, ordered by id and name.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.db.QueryContext(ctx, `SELECT ac_id, name, color FROM vehicles ORDER BY ac_id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v VehicleRow
		if err := rows.Scan(&v.ID, &v.Name, &v.Color); err != nil {
			_ = rows.Close()
			return nil, err
		}
		snap.Vehicles = append(snap.Vehicles, v)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT ac_id, name, class, fields, COALESCE(raw, ''), last_seen
		FROM messages ORDER BY ac_id, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			acID                     int
			name, class, fields, raw string
			lastSeen                 string
		)
		if err := rows.Scan(&acID, &name, &class, &fields, &raw, &lastSeen); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, lastSeen)
		if err != nil {
			return nil, fmt.Errorf("message %d/%s: last_seen: %w", acID, name, err)
		}
		rec, err := decodeRecord(class, name, fields, raw, ts)
		if err != nil {
			return nil, err
		}
		snap.Messages = append(snap.Messages, MessageRow{ACID: acID, Record: rec})
	}
	return snap, rows.Err()
}
