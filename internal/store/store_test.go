package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &Run{
		Kind:       KindAnalyze,
		ExampleSet: "weather",
		Threshold:  ptr(0.7),
		Patterns:   3,
		Included:   2,
		Result:     json.RawMessage(`{"included":2}`),
	}
	require.NoError(t, s.Save(ctx, run))
	assert.Len(t, run.ID, 36)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, KindAnalyze, got.Kind)
	assert.Equal(t, "weather", got.ExampleSet)
	require.NotNil(t, got.Threshold)
	assert.Equal(t, 0.7, *got.Threshold)
	assert.Nil(t, got.Valid)
	assert.Equal(t, 3, got.Patterns)
	assert.Equal(t, 2, got.Included)
	assert.JSONEq(t, `{"included":2}`, string(got.Result))
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, kind := range []Kind{KindAnalyze, KindValidate, KindValidate, KindGenerate} {
		require.NoError(t, s.Save(ctx, &Run{
			Kind:      kind,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Valid:     ptr(i%2 == 0),
		}))
	}

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, KindGenerate, all[0].Kind)
	assert.Equal(t, KindAnalyze, all[3].Kind)

	validations, err := s.List(ctx, ListOptions{Kind: KindValidate})
	require.NoError(t, err)
	require.Len(t, validations, 2)
	assert.True(t, *validations[0].Valid)
	assert.False(t, *validations[1].Valid)

	limited, err := s.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, &Run{Kind: KindValidate, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Save(ctx, &Run{Kind: KindValidate, CreatedAt: now}))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, DialectFor("pgx"))
	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)).
		WithArgs("run-1", "validate", sqlmock.AnyArg(), "", nil, 0, 0, true, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), &Run{ID: "run-1", Kind: KindValidate, Valid: ptr(true)}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetNoRowsWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, DialectDollar)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM transmute_runs WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	s := New(db, DialectQuestion)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id ASC LIMIT ?`)).
		WithArgs(DefaultListLimit).
		WillReturnError(boom)

	_, err = s.List(context.Background(), ListOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestRebind(t *testing.T) {
	s := New(nil, DialectDollar)
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))

	q := New(nil, DialectQuestion)
	assert.Equal(t, "a = ?", q.rebind("a = ?"))
	assert.Equal(t, DialectQuestion, DialectFor("sqlite3"))
	assert.Equal(t, DialectDollar, DialectFor("postgres"))
}
