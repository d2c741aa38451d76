// Package migrate versions the PostgreSQL record schema. Migrations are
// pairs of files named NNNN_name.up.sql and NNNN_name.down.sql; seeds are
// NNNN_name.sql files applied once, after the schema. Both are recorded in
// one history table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const historyTable = "schema_history"

// Kind tells migrations and seeds apart in the history table.
type Kind string

const (
	KindMigration Kind = "migration"
	KindSeed      Kind = "seed"
)

var (
	// ErrNothingToRollback is returned by Down on a fresh database.
	ErrNothingToRollback = errors.New("no migrations applied")
	// ErrBadPlan marks a migration set that cannot be ordered or reverted.
	ErrBadPlan = errors.New("invalid migration set")
)

// Step is one versioned script. Down is empty for seeds.
type Step struct {
	Kind    Kind
	Version int
	Name    string
	Up      string
	Down    string
}

// Entry is one row of the history table.
type Entry struct {
	Kind      Kind
	Version   int
	Name      string
	AppliedAt time.Time
}

// Plan is the ordered migration and seed set.
type Plan struct {
	Migrations []Step
	Seeds      []Step
}

// Load reads and checks a plan: versions are unique within a kind and every
// migration can be reverted. Either file system may be nil.
func Load(migrations, seeds fs.FS) (Plan, error) {
	var p Plan
	ups, err := glob(migrations, "*.up.sql")
	if err != nil {
		return p, err
	}
	for _, up := range ups {
		name := strings.TrimSuffix(path.Base(up), ".up.sql")
		step, err := newStep(KindMigration, name, up)
		if err != nil {
			return p, err
		}
		step.Down = path.Join(path.Dir(up), name+".down.sql")
		if _, err := fs.Stat(migrations, step.Down); err != nil {
			return p, fmt.Errorf("%w: %s has no down script", ErrBadPlan, name)
		}
		p.Migrations = append(p.Migrations, step)
	}
	files, err := glob(seeds, "*.sql")
	if err != nil {
		return p, err
	}
	for _, f := range files {
		step, err := newStep(KindSeed, strings.TrimSuffix(path.Base(f), ".sql"), f)
		if err != nil {
			return p, err
		}
		p.Seeds = append(p.Seeds, step)
	}
	if err := ordered(p.Migrations); err != nil {
		return p, err
	}
	return p, ordered(p.Seeds)
}

func newStep(kind Kind, name, file string) (Step, error) {
	prefix, _, ok := strings.Cut(name, "_")
	v, err := strconv.Atoi(prefix)
	if !ok || err != nil || v <= 0 {
		return Step{}, fmt.Errorf("%w: %s does not start with a version", ErrBadPlan, file)
	}
	return Step{Kind: kind, Version: v, Name: name, Up: file}, nil
}

func ordered(steps []Step) error {
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	for i := 1; i < len(steps); i++ {
		if steps[i].Version == steps[i-1].Version {
			return fmt.Errorf("%w: %s and %s share version %d", ErrBadPlan, steps[i-1].Name, steps[i].Name, steps[i].Version)
		}
	}
	return nil
}

func glob(fsys fs.FS, pattern string) ([]string, error) {
	if fsys == nil {
		return nil, nil
	}
	return fs.Glob(fsys, pattern)
}

// Runner applies a plan to a database.
type Runner struct {
	db         *sql.DB
	plan       Plan
	migrations fs.FS
	seeds      fs.FS
	now        func() time.Time
}

// New loads the plan from the two file systems.
func New(db *sql.DB, migrations, seeds fs.FS) (*Runner, error) {
	plan, err := Load(migrations, seeds)
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, plan: plan, migrations: migrations, seeds: seeds, now: time.Now}, nil
}

// Plan returns the loaded plan.
func (r *Runner) Plan() Plan { return r.plan }

// Up applies pending migrations in version order. Each script and its
// history row commit together.
func (r *Runner) Up(ctx context.Context) ([]Step, error) {
	return r.applyPending(ctx, r.migrations, r.plan.Migrations)
}

// Seed applies pending seeds.
func (r *Runner) Seed(ctx context.Context) ([]Step, error) {
	return r.applyPending(ctx, r.seeds, r.plan.Seeds)
}

// Down reverts the newest applied migration.
func (r *Runner) Down(ctx context.Context) (Step, error) {
	history, err := r.Status(ctx)
	if err != nil {
		return Step{}, err
	}
	var last *Entry
	for i := range history {
		if history[i].Kind == KindMigration {
			last = &history[i]
		}
	}
	if last == nil {
		return Step{}, ErrNothingToRollback
	}
	for _, step := range r.plan.Migrations {
		if step.Name != last.Name {
			continue
		}
		err := r.run(ctx, r.migrations, step.Down, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `delete from `+historyTable+` where kind = $1 and name = $2`, KindMigration, step.Name)
			return err
		})
		if err != nil {
			return Step{}, fmt.Errorf("revert %s: %w", step.Name, err)
		}
		return step, nil
	}
	return Step{}, fmt.Errorf("%w: applied migration %s is not in the plan", ErrBadPlan, last.Name)
}

// Status lists the history, migrations first, each kind by version.
func (r *Runner) Status(ctx context.Context) ([]Entry, error) {
	if err := r.ensureHistory(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `select kind, version, name, applied_at from `+historyTable+` order by kind, version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Kind, &e.Version, &e.Name, &e.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Runner) applyPending(ctx context.Context, fsys fs.FS, steps []Step) ([]Step, error) {
	history, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(history))
	for _, e := range history {
		done[string(e.Kind)+"/"+e.Name] = true
	}
	var applied []Step
	for _, step := range steps {
		if done[string(step.Kind)+"/"+step.Name] {
			continue
		}
		err := r.run(ctx, fsys, step.Up, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`insert into `+historyTable+` (kind, version, name, applied_at) values ($1, $2, $3, $4)`,
				step.Kind, step.Version, step.Name, r.now().UTC())
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s %s: %w", step.Kind, step.Name, err)
		}
		applied = append(applied, step)
	}
	return applied, nil
}

func (r *Runner) ensureHistory(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `create table if not exists `+historyTable+` (
		kind       text        not null,
		version    integer     not null,
		name       text        not null,
		applied_at timestamptz not null default now(),
		primary key (kind, name)
	)`)
	return err
}

// run executes a script and then record inside one transaction.
func (r *Runner) run(ctx context.Context, fsys fs.FS, file string, record func(*sql.Tx) error) error {
	script, err := fs.ReadFile(fsys, file)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(script)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// splitStatements splits a script on semicolons outside quoted literals and
// line comments. Blank statements are dropped.
func splitStatements(script string) []string {
	var (
		stmts   []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
				cur.WriteRune(c)
			}
			continue
		case !quoted && c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			continue
		case c == '\'':
			quoted = !quoted
		case c == ';' && !quoted:
			flush()
			continue
		}
		cur.WriteRune(c)
	}
	flush()
	return stmts
}
