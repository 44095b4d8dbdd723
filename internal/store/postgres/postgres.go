// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InsertDocument(ctx context.Context, collection string, doc model.Document) error {
	return queryInsertDocument(ctx, s.db, collection, doc)
}

func (s *PostgresStore) GetDocument(ctx context.Context, collection, id string) (model.Document, error) {
	return queryGetDocument(ctx, s.db, collection, id)
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, collection, id string, doc model.Document) error {
	return queryUpdateDocument(ctx, s.db, collection, id, doc)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, collection, id string) error {
	return queryDeleteDocument(ctx, s.db, collection, id)
}

func (s *PostgresStore) Aggregate(ctx context.Context, collection string, stages []map[string]any) ([]model.Document, error) {
	return queryAggregate(ctx, s.db, collection, stages)
}

func (s *PostgresStore) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	return queryCount(ctx, s.db, collection, filter)
}

func (s *PostgresStore) RegisterQuery(ctx context.Context, q *model.NamedQuery) (*model.NamedQuery, error) {
	return queryRegisterQuery(ctx, s.db, q)
}

func (s *PostgresStore) GetQuery(ctx context.Context, name string) (*model.NamedQuery, error) {
	return queryGetQuery(ctx, s.db, name)
}

func (s *PostgresStore) DeleteQuery(ctx context.Context, name string) error {
	return queryDeleteQuery(ctx, s.db, name)
}

func (s *PostgresStore) ListQueries(ctx context.Context) ([]*model.NamedQuery, error) {
	return queryListQueries(ctx, s.db, false)
}

func (s *PostgresStore) ExportQueries(ctx context.Context) ([]*model.NamedQuery, error) {
	return queryListQueries(ctx, s.db, true)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) InsertDocument(ctx context.Context, collection string, doc model.Document) error {
	return queryInsertDocument(ctx, s.tx, collection, doc)
}

func (s *txStore) GetDocument(ctx context.Context, collection, id string) (model.Document, error) {
	return queryGetDocument(ctx, s.tx, collection, id)
}

func (s *txStore) UpdateDocument(ctx context.Context, collection, id string, doc model.Document) error {
	return queryUpdateDocument(ctx, s.tx, collection, id, doc)
}

func (s *txStore) DeleteDocument(ctx context.Context, collection, id string) error {
	return queryDeleteDocument(ctx, s.tx, collection, id)
}

func (s *txStore) Aggregate(ctx context.Context, collection string, stages []map[string]any) ([]model.Document, error) {
	return queryAggregate(ctx, s.tx, collection, stages)
}

func (s *txStore) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	return queryCount(ctx, s.tx, collection, filter)
}

func (s *txStore) RegisterQuery(ctx context.Context, q *model.NamedQuery) (*model.NamedQuery, error) {
	return queryRegisterQuery(ctx, s.tx, q)
}

func (s *txStore) GetQuery(ctx context.Context, name string) (*model.NamedQuery, error) {
	return queryGetQuery(ctx, s.tx, name)
}

func (s *txStore) DeleteQuery(ctx context.Context, name string) error {
	return queryDeleteQuery(ctx, s.tx, name)
}

func (s *txStore) ListQueries(ctx context.Context) ([]*model.NamedQuery, error) {
	return queryListQueries(ctx, s.tx, false)
}

func (s *txStore) ExportQueries(ctx context.Context) ([]*model.NamedQuery, error) {
	return queryListQueries(ctx, s.tx, true)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
