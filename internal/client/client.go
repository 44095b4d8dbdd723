// Package client provides transport-agnostic interfaces for the docq service
// and HTTP/JSON and gRPC implementations of them.
package client

import (
	"context"

	"github.com/alfredjeanlab/docq/internal/model"
)

// Querier is the read path shared by every transport: filtered collection
// listing and named query execution.
type Querier interface {
	ListDocuments(ctx context.Context, collection, query string) (*model.ListResult, error)
	ExecuteNamedQuery(ctx context.Context, name string, req *model.ExecutionRequest) (*model.ExecutionResult, error)
	Health(ctx context.Context) (string, error)
	Close() error
}

// Client is the full docq API used by the CLI. It is implemented by
// HTTPClient.
type Client interface {
	Querier

	// Documents
	CreateDocument(ctx context.Context, collection string, doc model.Document) (model.Document, error)
	GetDocument(ctx context.Context, collection, id string) (model.Document, error)
	UpdateDocument(ctx context.Context, collection, id string, doc model.Document) (model.Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error

	// Named queries
	RegisterQuery(ctx context.Context, q *model.NamedQuery) (*model.NamedQuery, error)
	GetQuery(ctx context.Context, name string) (*model.NamedQuery, error)
	ListQueries(ctx context.Context) ([]*model.NamedQuery, error)
	DeleteQuery(ctx context.Context, name string) error
}

var (
	_ Client  = (*HTTPClient)(nil)
	_ Querier = (*GRPCClient)(nil)
)
