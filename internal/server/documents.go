package server

import (
	"context"
	"fmt"
	"maps"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/events"
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/pipeline"
	"github.com/alfredjeanlab/docq/internal/store"
)

// listDocuments compiles queryText for principal, runs the assembled
// pipeline and counts the unpaginated matches.
func (s *Server) listDocuments(ctx context.Context, p model.Principal, collection, queryText string) (*model.ListResult, error) {
	if err := model.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	compiled, err := s.compiler.CompileString(p, queryText)
	s.metrics.QueriesCompiled.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	plan := s.assembler.Assemble(collection, p, compiled)
	docs, err := s.store.Aggregate(ctx, collection, plan.Stages)
	if err != nil {
		return nil, err
	}
	total, err := s.countPlan(ctx, collection, plan)
	if err != nil {
		return nil, err
	}

	if docs == nil {
		docs = []model.Document{}
	}
	meta := model.ListMetadata{Total: total, Limit: total}
	if compiled.Options.Limit != nil {
		meta.Limit = *compiled.Options.Limit
	}
	if compiled.Options.Skip != nil {
		meta.Offset = *compiled.Options.Skip
	}
	return &model.ListResult{Data: docs, Metadata: meta}, nil
}

// countPlan returns the unpaginated number of matches for plan.
func (s *Server) countPlan(ctx context.Context, collection string, plan pipeline.Plan) (int, error) {
	if plan.CountStages == nil {
		return s.store.Count(ctx, collection, plan.CountFilter)
	}
	out, err := s.store.Aggregate(ctx, collection, plan.CountStages)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	switch n := out[0][pipeline.CountField].(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected count result %v", out[0])
	}
}

// getDocument returns a document the principal may see. Documents owned by
// another principal are reported as missing.
func (s *Server) getDocument(ctx context.Context, p model.Principal, collection, id string) (model.Document, error) {
	if err := model.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(p, doc) {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

// createDocument assigns id, owner and timestamps and inserts the document
// after a quota check in the same transaction.
func (s *Server) createDocument(ctx context.Context, p model.Principal, collection string, in map[string]any) (model.Document, error) {
	if err := model.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if in == nil {
		return nil, inputError("document body must be a JSON object")
	}

	id, err := s.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	doc := model.Document(maps.Clone(in))
	doc[model.IDField] = id
	doc[s.ownerField] = p.ID
	delete(doc, model.CreatedAtField)
	doc.Touch(s.now())

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := s.quota.Check(ctx, tx, p, collection); err != nil {
			return err
		}
		return tx.InsertDocument(ctx, collection, doc)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicDocumentCreated, p.ID, events.DocumentCreated{Collection: collection, Document: doc})
	return doc, nil
}

// updateDocument replaces the body of an existing document. The id, owner
// and creation time of the stored document are preserved.
func (s *Server) updateDocument(ctx context.Context, p model.Principal, collection, id string, in map[string]any) (model.Document, error) {
	if in == nil {
		return nil, inputError("document body must be a JSON object")
	}
	existing, err := s.getDocument(ctx, p, collection, id)
	if err != nil {
		return nil, err
	}

	doc := model.Document(maps.Clone(in))
	doc[model.IDField] = id
	if owner, ok := existing[s.ownerField]; ok {
		doc[s.ownerField] = owner
	} else {
		delete(doc, s.ownerField)
	}
	if created, ok := existing[model.CreatedAtField]; ok {
		doc[model.CreatedAtField] = created
	} else {
		delete(doc, model.CreatedAtField)
	}
	doc.Touch(s.now())

	if err := s.store.UpdateDocument(ctx, collection, id, doc); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicDocumentUpdated, ownerOf(doc, s.ownerField), events.DocumentUpdated{Collection: collection, Document: doc})
	return doc, nil
}

func (s *Server) deleteDocument(ctx context.Context, p model.Principal, collection, id string) error {
	existing, err := s.getDocument(ctx, p, collection, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, collection, id); err != nil {
		return err
	}
	s.publish(ctx, events.TopicDocumentDeleted, ownerOf(existing, s.ownerField), events.DocumentDeleted{Collection: collection, ID: id})
	return nil
}

// visible reports whether p may access doc. The service principal sees
// everything; unowned documents are visible to all.
func (s *Server) visible(p model.Principal, doc model.Document) bool {
	if p.ID == auth.ServicePrincipalID {
		return true
	}
	owner, ok := doc[s.ownerField]
	if !ok || owner == nil {
		return true
	}
	return owner == p.ID
}

func ownerOf(doc model.Document, field string) string {
	owner, _ := doc[field].(string)
	return owner
}
