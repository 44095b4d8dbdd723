package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/store"
)

// ErrQuotaExceeded is returned when a principal may not add another
// document to a collection.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Quota decides whether principal may create one more document in collection.
type Quota interface {
	Check(ctx context.Context, docs store.Documents, principal model.Principal, collection string) error
}

// Unlimited admits every create.
type Unlimited struct{}

func (Unlimited) Check(context.Context, store.Documents, model.Principal, string) error { return nil }

// PlanQuota caps the number of documents a principal owns per collection
// according to its plan. Plans without a limit, or with a limit of zero,
// are unlimited.
type PlanQuota struct {
	Limits     map[string]int
	OwnerField string
}

// Check counts through docs so that a transactional store sees its own writes.
func (q PlanQuota) Check(ctx context.Context, docs store.Documents, p model.Principal, collection string) error {
	limit := q.Limits[p.Plan]
	if limit <= 0 {
		return nil
	}
	n, err := docs.Count(ctx, collection, map[string]any{q.OwnerField: p.ID})
	if err != nil {
		return fmt.Errorf("counting documents for quota: %w", err)
	}
	if n >= limit {
		return fmt.Errorf("%w: plan %q allows %d documents in %s", ErrQuotaExceeded, p.Plan, limit, collection)
	}
	return nil
}
