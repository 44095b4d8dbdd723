package server

import (
	"context"
	"maps"

	"github.com/alfredjeanlab/docq/internal/events"
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/pipeline"
)

// registerQuery validates and upserts a named query.
func (s *Server) registerQuery(ctx context.Context, q *model.NamedQuery) (*model.NamedQuery, error) {
	if err := model.ValidateNamedQuery(q); err != nil {
		return nil, err
	}
	stored, err := s.store.RegisterQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicQueryRegistered, "", events.QueryRegistered{Query: stored})
	return stored, nil
}

func (s *Server) getQuery(ctx context.Context, name string) (*model.NamedQuery, error) {
	return s.store.GetQuery(ctx, name)
}

func (s *Server) listQueries(ctx context.Context) ([]*model.NamedQuery, error) {
	qs, err := s.store.ListQueries(ctx)
	if err != nil {
		return nil, err
	}
	if qs == nil {
		qs = []*model.NamedQuery{}
	}
	return qs, nil
}

func (s *Server) deleteQuery(ctx context.Context, name string) error {
	if err := s.store.DeleteQuery(ctx, name); err != nil {
		return err
	}
	s.publish(ctx, events.TopicQueryDeleted, "", events.QueryDeleted{Name: name})
	return nil
}

// executeQuery binds the caller's parameters into the stored template,
// appends the requested sort and pagination, and runs it. The owner field
// parameter is always bound to the acting principal.
func (s *Server) executeQuery(ctx context.Context, p model.Principal, name string, req model.ExecutionRequest) (res *model.ExecutionResult, err error) {
	defer func() { s.metrics.Executions.WithLabelValues(name, outcome(err)).Inc() }()

	q, err := s.store.GetQuery(ctx, name)
	if err != nil {
		return nil, err
	}

	params := maps.Clone(req.Params)
	if params == nil {
		params = map[string]any{}
	}
	params[s.ownerField] = p.ID

	stages, err := pipeline.Substitute(q.Pipeline, params, s.mode)
	if err != nil {
		return nil, err
	}
	opts := req.Options
	for _, v := range []*int{opts.Skip, opts.Limit} {
		if v != nil && *v < 0 {
			return nil, inputError("skip and limit must not be negative")
		}
	}
	stages = pipeline.Paginate(stages, opts.Sort, opts.Skip, opts.Limit)

	docs, err := s.store.Aggregate(ctx, q.CollectionName, stages)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}

	s.publish(ctx, events.TopicQueryExecuted, p.ID, events.QueryExecuted{
		Name:       name,
		Collection: q.CollectionName,
		Principal:  p.ID,
		Total:      len(docs),
	})

	return &model.ExecutionResult{
		Result: docs,
		Metadata: model.ExecutionMetadata{
			Total:            len(docs),
			ExecutedPipeline: stages,
			QueryName:        name,
		},
	}, nil
}
