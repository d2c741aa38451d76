package migrate

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func schemaFS() fstest.MapFS {
	return fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("create table b (x text); create table c (x text);")},
		"0001_a.up.sql":   {Data: []byte("create table a (x text);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
		"0002_b.down.sql": {Data: []byte("drop table c; drop table b;")},
		"README.md":       {Data: []byte("notes")},
	}
}

func historyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"kind", "version", "name", "applied_at"})
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("create table a (x text); -- drop; later\ninsert into a values ('x;y');\n\nselect 1")
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if got[1] != "insert into a values ('x;y')" {
		t.Fatalf("quoted semicolon split: %q", got[1])
	}
}

func TestLoadOrdersAndPairs(t *testing.T) {
	seeds := fstest.MapFS{"0001_settings.sql": {Data: []byte("select 1;")}}
	p, err := Load(schemaFS(), seeds)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Migrations) != 2 || p.Migrations[0].Name != "0001_a" || p.Migrations[1].Version != 2 {
		t.Fatalf("unexpected migrations %+v", p.Migrations)
	}
	if p.Migrations[1].Down != "0002_b.down.sql" {
		t.Fatalf("down script %q", p.Migrations[1].Down)
	}
	if len(p.Seeds) != 1 || p.Seeds[0].Kind != KindSeed {
		t.Fatalf("unexpected seeds %+v", p.Seeds)
	}
	if p, err := Load(nil, nil); err != nil || len(p.Migrations) != 0 {
		t.Fatalf("empty plan: %+v %v", p, err)
	}
}

func TestLoadRejectsBadSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing down": {"0001_a.up.sql": {Data: []byte("select 1;")}},
		"no version":   {"init.up.sql": {Data: []byte("select 1;")}, "init.down.sql": {}},
		"duplicate": {
			"0001_a.up.sql": {}, "0001_a.down.sql": {},
			"0001_b.up.sql": {}, "0001_b.down.sql": {},
		},
	}
	for name, fsys := range cases {
		if _, err := Load(fsys, nil); !errors.Is(err, ErrBadPlan) {
			t.Fatalf("%s: expected ErrBadPlan, got %v", name, err)
		}
	}
}

func TestUpAppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, err := New(db, schemaFS(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return applied }

	mock.ExpectExec("create table if not exists schema_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select kind, version, name, applied_at from schema_history").
		WillReturnRows(historyRows().AddRow("migration", 1, "0001_a", applied))
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table c").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_history").
		WithArgs("migration", 2, "0002_b", applied).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	steps, err := r.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(steps) != 1 || steps[0].Name != "0002_b" {
		t.Fatalf("unexpected applied steps %+v", steps)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpRollsBackFailedScript(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, err := New(db, schemaFS(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mock.ExpectExec("create table if not exists schema_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select kind, version, name, applied_at from schema_history").WillReturnRows(historyRows())
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	steps, err := r.Up(context.Background())
	if err == nil || len(steps) != 0 {
		t.Fatalf("expected failure before any step, got %v %v", steps, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRevertsNewest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, err := New(db, schemaFS(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	at := time.Now()
	mock.ExpectExec("create table if not exists schema_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select kind, version, name, applied_at from schema_history").
		WillReturnRows(historyRows().
			AddRow("migration", 1, "0001_a", at).
			AddRow("migration", 2, "0002_b", at).
			AddRow("seed", 1, "0001_settings", at))
	mock.ExpectBegin()
	mock.ExpectExec("drop table c").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("drop table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_history").
		WithArgs("migration", "0002_b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	step, err := r.Down(context.Background())
	if err != nil || step.Name != "0002_b" {
		t.Fatalf("Down: %+v %v", step, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownWithoutHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, err := New(db, fstest.MapFS{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mock.ExpectExec("create table if not exists schema_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select kind, version, name, applied_at from schema_history").WillReturnRows(historyRows())

	if _, err := r.Down(context.Background()); !errors.Is(err, ErrNothingToRollback) {
		t.Fatalf("expected ErrNothingToRollback, got %v", err)
	}
}
