package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mircrewapi/internal/components/chrono"
	"mircrewapi/internal/components/telemetry"
	"mircrewapi/pkg/sqliteutil"
)

const Schema = `create table if not exists cache_entries (
	key text primary key,
	value text not null,
	created_at integer not null,
	expires_at integer not null
);`

const (
	report_sqlite_store_get = "sqlite_store.get"
)

// SQLiteStore keeps entries in a single sqlite table, times are stored as
// unix milliseconds.
type SQLiteStore struct {
	db    *sql.DB
	clock chrono.API
	tel   telemetry.API
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string, clock chrono.API, tel telemetry.API) (SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(Schema, path)
	if err != nil {
		return SQLiteStore{}, err
	}
	return NewSQLiteStore(db, clock, tel), nil
}

// NewSQLiteStore expects Schema to already be applied to db.
func NewSQLiteStore(db *sql.DB, clock chrono.API, tel telemetry.API) SQLiteStore {
	return SQLiteStore{
		db:    db,
		clock: clock,
		tel:   telemetry.NewScopedAPI("cache", tel),
	}
}

func (s SQLiteStore) Close() error {
	return s.db.Close()
}

func (s SQLiteStore) Get(ctx context.Context, key string) (Entry, bool) {
	safe := sanitizeKey(key)
	if safe == "" {
		return Entry{}, false
	}

	var entry Entry
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(
		ctx,
		"select value, created_at, expires_at from cache_entries where key = ?",
		safe,
	).Scan(&entry.Value, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false
	}
	if err != nil {
		s.tel.ReportWarning(report_sqlite_store_get, err)
		return Entry{}, false
	}
	entry.Key = key
	entry.CreatedAt = time.UnixMilli(createdAt).UTC()
	entry.ExpiresAt = time.UnixMilli(expiresAt).UTC()

	if entry.expired(s.clock.Now()) {
		err = s.Delete(ctx, key)
		if err != nil {
			s.tel.ReportWarning(report_sqlite_store_get, err)
		}
		return Entry{}, false
	}
	return entry, true
}

func (s SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) (Entry, error) {
	safe := sanitizeKey(key)
	if safe == "" {
		return Entry{}, fmt.Errorf("set %q: %w", key, ErrInvalidKey)
	}
	// truncate so the returned entry matches what a later Get reads back
	now := s.clock.Now().Truncate(time.Millisecond)
	entry, err := newEntry(key, value, now, ttl)
	if err != nil {
		return Entry{}, fmt.Errorf("set %q: %w", key, err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`insert into cache_entries(key, value, created_at, expires_at) values (?, ?, ?, ?)
		on conflict(key) do update set
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		safe, value, entry.CreatedAt.UnixMilli(), entry.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("set %q: %w", key, err)
	}
	return entry, nil
}

func (s SQLiteStore) Delete(ctx context.Context, key string) error {
	safe := sanitizeKey(key)
	if safe == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "delete from cache_entries where key = ?", safe)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}
