package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/docq/internal/model"
)

var (
	// ErrNotFound is returned when a document or named query does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when inserting a document whose id is taken.
	ErrConflict = errors.New("already exists")
)

// Documents is the generic document accessor. Collections are named at
// call time and need no declaration.
type Documents interface {
	InsertDocument(ctx context.Context, collection string, doc model.Document) error
	GetDocument(ctx context.Context, collection, id string) (model.Document, error)
	// UpdateDocument replaces the stored document.
	UpdateDocument(ctx context.Context, collection, id string, doc model.Document) error
	DeleteDocument(ctx context.Context, collection, id string) error

	// Aggregate runs stages over the collection and returns the result.
	Aggregate(ctx context.Context, collection string, stages []map[string]any) ([]model.Document, error)
	// Count returns the number of documents matching filter.
	Count(ctx context.Context, collection string, filter map[string]any) (int, error)
}

// Queries is the named query registry.
type Queries interface {
	// RegisterQuery creates q or overwrites the query of the same name,
	// keeping its creation time. The stored record is returned.
	RegisterQuery(ctx context.Context, q *model.NamedQuery) (*model.NamedQuery, error)
	GetQuery(ctx context.Context, name string) (*model.NamedQuery, error)
	DeleteQuery(ctx context.Context, name string) error
	// ListQueries returns all queries ordered by name, without pipelines.
	ListQueries(ctx context.Context) ([]*model.NamedQuery, error)
	// ExportQueries returns all queries ordered by name, with pipelines.
	ExportQueries(ctx context.Context) ([]*model.NamedQuery, error)
}

// Store defines the persistence interface for documents and named queries.
type Store interface {
	Documents
	Queries

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
