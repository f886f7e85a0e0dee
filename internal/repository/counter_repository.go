package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/hello-counter/internal/database"
	"github.com/iliyamo/hello-counter/internal/model"
)

// counterDialect holds the driver specific statements for the counters table.
// returning reports whether increment hands back the new value itself; when
// it does not, the repository reads it back inside the same transaction.
type counterDialect struct {
	createTable string
	seed        string
	read        string
	increment   string
	returning   bool
}

var dialects = map[string]counterDialect{
	database.DriverSQLite: {
		createTable: `CREATE TABLE IF NOT EXISTS counters (
			id    INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
			value INTEGER NOT NULL DEFAULT 0 CHECK (value >= 0)
		)`,
		seed:      `INSERT INTO counters (id, value) VALUES (?, 0) ON CONFLICT(id) DO NOTHING`,
		read:      `SELECT id, value FROM counters WHERE id = ?`,
		increment: `UPDATE counters SET value = value + 1 WHERE id = ? RETURNING value`,
		returning: true,
	},
	database.DriverMySQL: {
		createTable: `CREATE TABLE IF NOT EXISTS counters (
			id    TINYINT UNSIGNED NOT NULL PRIMARY KEY,
			value BIGINT UNSIGNED NOT NULL DEFAULT 0
		) ENGINE=InnoDB`,
		seed:      `INSERT INTO counters (id, value) VALUES (?, 0) ON DUPLICATE KEY UPDATE id = id`,
		read:      `SELECT id, value FROM counters WHERE id = ?`,
		increment: `UPDATE counters SET value = value + 1 WHERE id = ?`,
	},
}

// CounterRepo provides access to the singleton counters row. It keeps no
// copy of the value in memory: every Read and Increment goes to the store,
// so replicas sharing the same store always agree.
type CounterRepo struct {
	db      *sql.DB
	dialect counterDialect
}

// NewCounterRepo returns a CounterRepo bound to db, using the SQL dialect of
// driver (database.DriverSQLite or database.DriverMySQL).
func NewCounterRepo(db *sql.DB, driver string) (*CounterRepo, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	return &CounterRepo{db: db, dialect: d}, nil
}

// Initialize creates the counters table and the singleton row when they are
// absent. It is safe to call on every startup and from several replicas at
// once: the primary key turns a concurrent second insert into a no-op, and
// an existing value is never reset.
func (r *CounterRepo) Initialize(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.createTable); err != nil {
		return fmt.Errorf("create counters table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.dialect.seed, model.CounterID); err != nil {
		return fmt.Errorf("seed counter row: %w", err)
	}
	return nil
}

// Get loads the counter row.
func (r *CounterRepo) Get(ctx context.Context) (*model.Counter, error) {
	var c model.Counter
	err := r.db.QueryRowContext(ctx, r.dialect.read, model.CounterID).Scan(&c.ID, &c.Value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCounterMissing
		}
		return nil, fmt.Errorf("read counter: %w", err)
	}
	return &c, nil
}

// Read returns the latest committed counter value.
func (r *CounterRepo) Read(ctx context.Context) (int64, error) {
	c, err := r.Get(ctx)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

// Increment atomically adds one to the counter and returns the new value.
// The addition happens inside the store (value = value + 1), never as a
// read followed by a write from Go, so concurrent callers cannot lose
// updates. A failed increment is not retried here: retrying a
// non-idempotent write could count twice.
func (r *CounterRepo) Increment(ctx context.Context) (int64, error) {
	if r.dialect.returning {
		var v int64
		err := r.db.QueryRowContext(ctx, r.dialect.increment, model.CounterID).Scan(&v)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, ErrCounterMissing
			}
			return 0, fmt.Errorf("increment counter: %w", err)
		}
		return v, nil
	}
	return r.incrementTx(ctx)
}

// incrementTx runs UPDATE then SELECT in one transaction. The UPDATE takes
// the row lock, so the SELECT sees this transaction's own write and no other
// writer can slip in between.
func (r *CounterRepo) incrementTx(ctx context.Context) (_ int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("increment counter: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, r.dialect.increment, model.CounterID)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	if n == 0 {
		return 0, ErrCounterMissing
	}
	var c model.Counter
	if err = tx.QueryRowContext(ctx, r.dialect.read, model.CounterID).Scan(&c.ID, &c.Value); err != nil {
		return 0, fmt.Errorf("increment counter: read back: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("increment counter: commit: %w", err)
	}
	committed = true
	return c.Value, nil
}
