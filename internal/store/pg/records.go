// Package pg stores reference backend records in PostgreSQL as JSONB
// documents.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"brdconsole.org/internal/migrate"
	"brdconsole.org/internal/store"
)

const pgErrUniqueViolation = "23505"

//go:embed migrations/*.sql seeds/*.sql
var sqlFiles embed.FS

// Migrations returns the schema migrations.
func Migrations() fs.FS { return sub("migrations") }

// Seeds returns the seed scripts.
func Seeds() fs.FS { return sub("seeds") }

// Runner returns a migration runner over the embedded record schema.
func Runner(db *sql.DB) (*migrate.Runner, error) {
	return migrate.New(db, Migrations(), Seeds())
}

// Apply brings the record schema up to date and loads pending seeds.
func (s *Store) Apply(ctx context.Context) ([]migrate.Step, error) {
	r, err := Runner(s.db)
	if err != nil {
		return nil, err
	}
	applied, err := r.Up(ctx)
	if err != nil {
		return applied, err
	}
	seeded, err := r.Seed(ctx)
	return append(applied, seeded...), err
}

func sub(dir string) fs.FS {
	f, err := fs.Sub(sqlFiles, dir)
	if err != nil {
		panic(err)
	}
	return f
}

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle, e.g. a sqlmock connection.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) NextID(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		insert into record_sequences(collection, value) values ($1, 1)
		on conflict (collection) do update set value = record_sequences.value + 1
		returning value`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", collection, err)
	}
	return n, nil
}

// List filters on body fields with ->> so numbers and booleans compare in
// their text form, like store.Text.
func (s *Store) List(ctx context.Context, collection string, filter store.Filter) ([]store.Record, error) {
	query, args := listQuery(collection, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Record{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		rec, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func listQuery(collection string, filter store.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString(`select body from records where collection = $1`)
	args := []any{collection}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, filter[k])
		fmt.Fprintf(&b, ` and body->>$%d = $%d`, len(args)-1, len(args))
	}
	b.WriteString(` order by seq`)
	return b.String(), args
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `select body from records where collection = $1 and id = $2`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(body)
}

// Insert stores rec and, for numeric ids, moves the collection sequence past
// id so NextID never reissues it.
func (s *Store) Insert(ctx context.Context, collection, id string, rec store.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `insert into records(collection, id, body) values ($1, $2, $3::jsonb)`,
		collection, id, string(body)); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return store.ErrConflict
		}
		return err
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > 0 {
		if _, err := tx.ExecContext(ctx, `
			insert into record_sequences(collection, value) values ($1, $2)
			on conflict (collection) do update set value = greatest(record_sequences.value, excluded.value)`,
			collection, n); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Replace(ctx context.Context, collection, id string, rec store.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `update records set body = $3::jsonb, updated_at = now() where collection = $1 and id = $2`,
		collection, id, string(body))
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from records where collection = $1 and id = $2`, collection, id)
	if err != nil {
		return err
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func decode(body []byte) (store.Record, error) {
	rec := store.Record{}
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
