package pipeline

import (
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/query"
)

// Plan is an assembled list query.
type Plan struct {
	Stages []Stage
	// CountFilter selects the same documents as the pipeline before
	// pagination. It is nil when CountStages is set.
	CountFilter map[string]any
	// CountStages is set for ledger collections, whose filter may refer to
	// computed fields. Running it yields at most one document holding the
	// total in CountField.
	CountStages []Stage
}

// CountField holds the total produced by Plan.CountStages.
const CountField = "total"

// Assembler builds list pipelines. The zero value has no ledger collections.
type Assembler struct {
	Ledger Ledger
}

// NewAssembler returns an Assembler using ledger.
func NewAssembler(ledger Ledger) *Assembler {
	return &Assembler{Ledger: ledger}
}

// Assemble produces the stage sequence for a compiled list query on
// collection. Ledger collections are scoped to the principal and receive
// running balances before the caller's filter is applied, so balances
// reflect the full history rather than the filtered page.
func (a *Assembler) Assemble(collection string, principal model.Principal, compiled *query.Compiled) Plan {
	filter := compiled.Filter
	if filter == nil {
		filter = map[string]any{}
	}

	if !a.Ledger.Applies(collection) {
		opts := compiled.Options
		stages := Paginate([]Stage{Match(filter)}, opts.Sort, opts.Skip, opts.Limit)
		return Plan{Stages: stages, CountFilter: filter}
	}

	scope := a.Ledger.Scope(principal.ID, a.Ledger.AccountScope(filter))
	base := []Stage{Match(scope)}
	base = append(base, a.Ledger.BalanceStages()...)
	base = append(base, Match(filter))

	opts := compiled.Options
	stages := Paginate(base, opts.Sort, opts.Skip, opts.Limit)
	count := append(base[:len(base):len(base)], Stage{OpCount: CountField})
	return Plan{Stages: stages, CountStages: count}
}
