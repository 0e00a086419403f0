package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/petsync/sureflap-sync/pkg/model"
)

const replaySchema = `
CREATE TABLE IF NOT EXISTS curfews (
	device_id  INTEGER PRIMARY KEY,
	curfew     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fetches (
	name       TEXT PRIMARY KEY,
	fetched_at TEXT NOT NULL
);
`

// SQLiteReplayStore is the on-disk ReplayStore backed by a local SQLite
// file.
type SQLiteReplayStore struct {
	db *sql.DB
}

// OpenSQLiteReplayStore opens (creating if needed) the replay database
// at path and ensures the schema exists.
func OpenSQLiteReplayStore(path string) (*SQLiteReplayStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening replay database: %w", err)
	}
	if _, err := db.Exec(replaySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing replay schema: %w", err)
	}
	return &SQLiteReplayStore{db: db}, nil
}

func (s *SQLiteReplayStore) LastEnabledCurfew(ctx context.Context, deviceID int64) (model.Curfew, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT curfew FROM curfews WHERE device_id = ?`, deviceID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading stored curfew: %w", err)
	}
	var c model.Curfew
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, false, fmt.Errorf("decoding stored curfew: %w", err)
	}
	return c, true, nil
}

func (s *SQLiteReplayStore) SetLastEnabledCurfew(ctx context.Context, deviceID int64, c model.Curfew) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding curfew: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO curfews (device_id, curfew, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET curfew = excluded.curfew, updated_at = excluded.updated_at`,
		deviceID, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing curfew: %w", err)
	}
	return nil
}

func (s *SQLiteReplayStore) LastFetch(ctx context.Context, name string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM fetches WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading fetch offset: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing fetch offset: %w", err)
	}
	return t, true, nil
}

func (s *SQLiteReplayStore) SetLastFetch(ctx context.Context, name string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetches (name, fetched_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET fetched_at = excluded.fetched_at`,
		name, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing fetch offset: %w", err)
	}
	return nil
}

func (s *SQLiteReplayStore) Close() error {
	return s.db.Close()
}
