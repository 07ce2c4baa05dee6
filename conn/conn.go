// Package conn implements the PostgreSQL connection capability —
// execute, fetch, and transaction — backed by database/sql and lib/pq.
// PostgreSQL is the only supported dialect, and nested transactions are
// expressed as savepoints.
package conn

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connection is the capability surface every higher layer (query
// execution, ddl application, save/load) needs from a database handle.
type Connection interface {
	Execute(ctx context.Context, sql string, params ...interface{}) (sql.Result, error)
	Fetch(ctx context.Context, query string, params ...interface{}) (*sql.Rows, error)
	FetchRow(ctx context.Context, query string, params ...interface{}) *sql.Row
	Transaction(ctx context.Context, fn func(tx *Tx) error) error
}

// DB wraps *sql.DB as the PostgreSQL Connection implementation.
type DB struct {
	inner *sql.DB
}

// Open connects to PostgreSQL via the lib/pq driver.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("conn: open: %w", err)
	}
	return &DB{inner: db}, nil
}

// FromDB wraps an already-opened *sql.DB (e.g. one configured with
// custom pool settings by the caller).
func FromDB(db *sql.DB) *DB { return &DB{inner: db} }

func (d *DB) Execute(ctx context.Context, query string, params ...interface{}) (sql.Result, error) {
	return d.inner.ExecContext(ctx, query, params...)
}

func (d *DB) Fetch(ctx context.Context, query string, params ...interface{}) (*sql.Rows, error) {
	return d.inner.QueryContext(ctx, query, params...)
}

func (d *DB) FetchRow(ctx context.Context, query string, params ...interface{}) *sql.Row {
	return d.inner.QueryRowContext(ctx, query, params...)
}

// Close releases the underlying pool.
func (d *DB) Close() error { return d.inner.Close() }

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error { return d.inner.PingContext(ctx) }

// Tx wraps *sql.Tx with the same Connection-shaped methods plus
// savepoint-backed nesting, so the save planner can run a batch of
// dependent writes atomically and still retry a sub-batch.
type Tx struct {
	inner *sql.Tx
	depth int
}

func (t *Tx) Execute(ctx context.Context, query string, params ...interface{}) (sql.Result, error) {
	return t.inner.ExecContext(ctx, query, params...)
}

func (t *Tx) Fetch(ctx context.Context, query string, params ...interface{}) (*sql.Rows, error) {
	return t.inner.QueryContext(ctx, query, params...)
}

func (t *Tx) FetchRow(ctx context.Context, query string, params ...interface{}) *sql.Row {
	return t.inner.QueryRowContext(ctx, query, params...)
}

// Transaction within a transaction runs fn inside a SAVEPOINT, so a
// nested failure only rolls back its own sub-batch.
func (t *Tx) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	t.depth++
	name := fmt.Sprintf("sp_%d", t.depth)
	defer func() { t.depth-- }()

	if _, err := t.inner.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("conn: create savepoint: %w", err)
	}

	nested := &Tx{inner: t.inner, depth: t.depth}
	if err := fn(nested); err != nil {
		if _, rbErr := t.inner.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("nested transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if _, err := t.inner.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("conn: release savepoint: %w", err)
	}
	return nil
}

// Transaction runs fn inside a top-level database transaction, committing
// on success and rolling back (including on panic) on error.
func (d *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.inner.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conn: begin transaction: %w", err)
	}
	tx := &Tx{inner: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("conn: commit: %w", err)
	}
	return nil
}
