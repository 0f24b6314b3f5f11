// Package sqldb implements storage.Driver on database/sql. The sqlite and
// postgres packages embed it with their own Dialect.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/saamerm/particle/pkg/storage"
)

// Dialect holds the SQL that differs between database engines.
type Dialect struct {
	// Migrations create the schema. Each statement must be idempotent.
	Migrations []string

	// Numbered rewrites "?" placeholders to "$1", "$2", ...
	Numbered bool

	// NamePrefix is a clause matching the name column against a prefix.
	// Every "?" in it receives the prefix.
	NamePrefix string
}

// Driver implements storage.Driver over a *sql.DB.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect

	now func() time.Time
}

// New runs the dialect migrations on db and returns a Driver.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	for _, stmt := range dialect.Migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Driver{DB: db, Dialect: dialect, now: time.Now}, nil
}

const columns = "id, device_id, name, data, ttl, published_at, received_at, stream_url"

// Put stores a record. Returns false when the ID already exists.
func (d *Driver) Put(ctx context.Context, rec *storage.Record) (bool, error) {
	if rec == nil {
		return false, storage.ErrNilRecord
	}

	receivedAt := rec.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = d.now().UTC()
	}

	res, err := d.DB.ExecContext(ctx, d.rebind(
		"INSERT INTO events ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING"),
		rec.ID,
		rec.Event.DeviceID,
		rec.Event.Name,
		rec.Event.Data,
		rec.Event.TTL,
		toNanos(rec.Event.PublishedAt),
		toNanos(receivedAt),
		rec.StreamURL,
	)
	if err != nil {
		return false, fmt.Errorf("inserting event %s: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting event %s: %w", rec.ID, err)
	}

	return n > 0, nil
}

// Get retrieves a record by its ID.
func (d *Driver) Get(ctx context.Context, id string) (*storage.Record, error) {
	row := d.DB.QueryRowContext(ctx, d.rebind("SELECT "+columns+" FROM events WHERE id = ?"), id)

	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %s: %w", id, err)
	}

	return rec, nil
}

// List returns matching records, most recently stored first.
func (d *Driver) List(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	where, args := d.where(filter)

	query := "SELECT " + columns + " FROM events" + where + " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := d.DB.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	out := make([]*storage.Record, 0)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	return out, nil
}

// Count returns the number of matching records.
func (d *Driver) Count(ctx context.Context, filter storage.Filter) (int, error) {
	where, args := d.where(filter)

	var n int
	if err := d.DB.QueryRowContext(ctx, d.rebind("SELECT COUNT(*) FROM events"+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}

	return n, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

func (d *Driver) where(filter storage.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if filter.DeviceID != "" {
		clauses = append(clauses, "device_id = ?")
		args = append(args, filter.DeviceID)
	}

	if filter.NamePrefix != "" {
		clauses = append(clauses, d.Dialect.NamePrefix)
		for range strings.Count(d.Dialect.NamePrefix, "?") {
			args = append(args, filter.NamePrefix)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// rebind rewrites "?" placeholders for dialects with numbered parameters.
func (d *Driver) rebind(query string) string {
	if !d.Dialect.Numbered {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*storage.Record, error) {
	var (
		rec        storage.Record
		published  int64
		receivedAt int64
	)

	err := s.Scan(
		&rec.ID,
		&rec.Event.DeviceID,
		&rec.Event.Name,
		&rec.Event.Data,
		&rec.Event.TTL,
		&published,
		&receivedAt,
		&rec.StreamURL,
	)
	if err != nil {
		return nil, err
	}

	rec.Event.PublishedAt = fromNanos(published)
	rec.ReceivedAt = fromNanos(receivedAt)

	return &rec, nil
}

// Timestamps are stored as unix nanoseconds; zero maps to the zero time.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
