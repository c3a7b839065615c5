// Package store persists the history of analyze, validate and generate runs
// in a SQL database. SQLite, lib/pq and pgx drivers are registered.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	_ "github.com/lib/pq"              // PostgreSQL driver "postgres"
	_ "github.com/mattn/go-sqlite3"    // SQLite driver "sqlite3"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Kind identifies what a run did.
type Kind string

const (
	KindAnalyze  Kind = "analyze"
	KindValidate Kind = "validate"
	KindGenerate Kind = "generate"
)

// Run is one recorded invocation.
type Run struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	CreatedAt  time.Time       `json:"created_at"`
	ExampleSet string          `json:"example_set,omitempty"`
	Threshold  *float64        `json:"threshold,omitempty"`
	Patterns   int             `json:"patterns"`
	Included   int             `json:"included"`
	Valid      *bool           `json:"valid,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// ListOptions filters List. A zero Limit means DefaultListLimit.
type ListOptions struct {
	Kind  Kind
	Limit int
}

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Dialect selects the bind parameter style.
type Dialect int

const (
	// DialectQuestion binds with ?, as SQLite does.
	DialectQuestion Dialect = iota
	// DialectDollar binds with $1, $2, as PostgreSQL does.
	DialectDollar
)

// DialectFor returns the dialect of a registered driver name.
func DialectFor(driver string) Dialect {
	switch driver {
	case "postgres", "pgx":
		return DialectDollar
	}
	return DialectQuestion
}

// Store reads and writes runs.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects using driver ("sqlite3", "postgres" or "pgx") and ensures the
// schema exists.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	s := New(db, DialectFor(driver))
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS transmute_runs (
	id VARCHAR(36) PRIMARY KEY,
	kind VARCHAR(16) NOT NULL,
	created_at TIMESTAMP NOT NULL,
	example_set VARCHAR(255) NOT NULL DEFAULT '',
	threshold DOUBLE PRECISION,
	patterns INTEGER NOT NULL DEFAULT 0,
	included INTEGER NOT NULL DEFAULT 0,
	valid BOOLEAN,
	result TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_transmute_runs_created_at ON transmute_runs(created_at)`,
}

// Migrate creates the runs table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize runs table: %w", err)
		}
	}
	return nil
}

// Save inserts run, assigning an ID and creation time when unset.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := s.rebind(`INSERT INTO transmute_runs
	(id, kind, created_at, example_set, threshold, patterns, included, valid, result)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		run.ID, string(run.Kind), run.CreatedAt, run.ExampleSet,
		nullFloat(run.Threshold), run.Patterns, run.Included, nullBool(run.Valid),
		string(run.Result),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

const selectRuns = `SELECT id, kind, created_at, example_set, threshold, patterns, included, valid, result FROM transmute_runs`

// Get returns the run with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectRuns+` WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := selectRuns
	var args []any
	if opts.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(opts.Kind))
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Prune deletes runs created before cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM transmute_runs WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run       Run
		kind      string
		threshold sql.NullFloat64
		valid     sql.NullBool
		result    string
	)
	if err := row.Scan(&run.ID, &kind, &run.CreatedAt, &run.ExampleSet, &threshold,
		&run.Patterns, &run.Included, &valid, &result); err != nil {
		return nil, err
	}
	run.Kind = Kind(kind)
	run.CreatedAt = run.CreatedAt.UTC()
	if threshold.Valid {
		run.Threshold = &threshold.Float64
	}
	if valid.Valid {
		run.Valid = &valid.Bool
	}
	if result != "" {
		run.Result = json.RawMessage(result)
	}
	return &run, nil
}

// rebind rewrites ? placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectDollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
