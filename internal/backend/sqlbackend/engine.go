// Package sqlbackend implements the SQL backend adapter on database/sql.
// It compiles the query model to parameterized SQL, maps entity types to
// tables and multi-value reference attributes to junction tables. Both
// PostgreSQL (pgx) and SQLite (mattn) are supported through a small
// dialect layer.
package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"

	// Registered database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
)

// Backend is the backend name entity types use to select this adapter
const Backend = "sql"

// Engine owns the database handle and hands out repositories
type Engine struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database identified by driver and dsn
func Open(driver, dsn string) (*Engine, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect.Name(), err)
	}
	return &Engine{db: db, dialect: dialect}, nil
}

// NewEngine wraps an existing database handle, used by tests
func NewEngine(db *sql.DB, dialect Dialect) *Engine {
	return &Engine{db: db, dialect: dialect}
}

// Ping verifies the database connection
func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close closes the database handle
func (e *Engine) Close() error {
	return e.db.Close()
}

// CreateRepository creates the tables of an entity type and returns its
// repository
func (e *Engine) CreateRepository(ctx context.Context, et *meta.EntityType) (*Repository, error) {
	repo := newRepository(e, et)
	for _, stmt := range repo.createStatements() {
		if _, err := e.execContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create table for %s: %w", et.ID, err)
		}
	}
	return repo, nil
}

// Repository returns the repository of an already created entity type
func (e *Engine) Repository(et *meta.EntityType) *Repository {
	return newRepository(e, et)
}

// DropRepository removes the tables of an entity type
func (e *Engine) DropRepository(ctx context.Context, et *meta.EntityType) error {
	repo := newRepository(e, et)
	for _, stmt := range repo.dropStatements() {
		if _, err := e.execContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop table for %s: %w", et.ID, err)
		}
	}
	return nil
}

type sqlTxKey struct{}

// RunInTransaction implements data.TransactionRunner on a sql.Tx carried
// through the context. Nested calls join the outer transaction.
func (e *Engine) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return tx
}

// querier is the subset of sql.DB and sql.Tx the repository needs
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (e *Engine) querier(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return e.db
}

func (e *Engine) execContext(ctx context.Context, stmt string, args ...interface{}) (sql.Result, error) {
	return e.querier(ctx).ExecContext(ctx, stmt, args...)
}

var _ data.TransactionRunner = (*Engine)(nil)
