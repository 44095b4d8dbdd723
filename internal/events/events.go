package events

import (
	"context"

	"github.com/alfredjeanlab/docq/internal/model"
)

// Event topics. Subjects are dot-separated so NATS wildcards apply.
const (
	TopicDocumentCreated = "docq.document.created"
	TopicDocumentUpdated = "docq.document.updated"
	TopicDocumentDeleted = "docq.document.deleted"

	TopicQueryRegistered = "docq.query.registered"
	TopicQueryDeleted    = "docq.query.deleted"
	TopicQueryExecuted   = "docq.query.executed"

	// TopicAll matches every docq event.
	TopicAll = "docq.>"
)

type DocumentCreated struct {
	Collection string         `json:"collection"`
	Document   model.Document `json:"document"`
}

type DocumentUpdated struct {
	Collection string         `json:"collection"`
	Document   model.Document `json:"document"`
}

type DocumentDeleted struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

type QueryRegistered struct {
	Query *model.NamedQuery `json:"query"`
}

type QueryDeleted struct {
	Name string `json:"name"`
}

// QueryExecuted carries the outcome of a named query run, not its rows.
type QueryExecuted struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Principal  string `json:"principal"`
	Total      int    `json:"total"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
