package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"frc/internal/fleet"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresStore keeps the snapshot in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool and creates the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// CreateSchema creates the snapshot tables.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicles (
		ac_id   INTEGER PRIMARY KEY,
		name    TEXT NOT NULL,
		color   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		ac_id       INTEGER NOT NULL,
		name        TEXT NOT NULL,
		class       TEXT NOT NULL,
		fields      JSONB NOT NULL,
		raw         JSON, -- JSONB would reorder the fields object.
		last_seen   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (ac_id, name)
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveVehicle inserts or updates a vehicle identity.
func (s *PostgresStore) SaveVehicle(ctx context.Context, v VehicleRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vehicles (ac_id, name, color) VALUES ($1, $2, $3)
		ON CONFLICT (ac_id) DO UPDATE SET name = EXCLUDED.name, color = EXCLUDED.color`,
		v.ID, v.Name, v.Color)
	if err != nil {
		return fmt.Errorf("save vehicle %d: %w", v.ID, err)
	}
	return nil
}

// SaveMessage replaces the stored latest message of (acID, rec.Name).
func (s *PostgresStore) SaveMessage(ctx context.Context, acID int, rec fleet.MessageRecord) error {
	fields, err := encodeFields(rec.FieldValues)
	if err != nil {
		return err
	}
	var raw *string
	if len(rec.Raw) > 0 {
		r := string(rec.Raw)
		raw = &r
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (ac_id, name, class, fields, raw, last_seen)
		VALUES ($1, $2, $3, $4::jsonb, $5::json, $6)
		ON CONFLICT (ac_id, name) DO UPDATE SET
			class = EXCLUDED.class,
			fields = EXCLUDED.fields,
			raw = EXCLUDED.raw,
			last_seen = EXCLUDED.last_seen`,
		acID, rec.Name, rec.Class, fields, raw, rec.LastSeen)
	if err != nil {
		return fmt.Errorf("save message %d/%s: %w", acID, rec.Name, err)
	}
	return nil
}

// Load reads every stored vehicle and message, ordered by id and name.
func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.pool.Query(ctx, `SELECT ac_id, name, color FROM vehicles ORDER BY ac_id`)
	if err != nil {
		return nil, err
	}
	snap.Vehicles, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (VehicleRow, error) {
		var v VehicleRow
		err := row.Scan(&v.ID, &v.Name, &v.Color)
		return v, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT ac_id, name, class, fields::text, COALESCE(raw::text, ''), last_seen
		FROM messages ORDER BY ac_id, name`)
	if err != nil {
		return nil, err
	}
	snap.Messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (MessageRow, error) {
		var (
			m                        MessageRow
			name, class, fields, raw string
			lastSeen                 time.Time
		)
		if err := row.Scan(&m.ACID, &name, &class, &fields, &raw, &lastSeen); err != nil {
			return m, err
		}
		rec, err := decodeRecord(class, name, fields, raw, lastSeen)
		m.Record = rec
		return m, err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
