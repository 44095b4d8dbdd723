package pipeline

import (
	"slices"

	"github.com/alfredjeanlab/docq/internal/query"
)

// Intermediate fields used while computing a running balance.
const (
	amountCentsField  = "__amountCents"
	balanceCentsField = "__balanceCents"
)

// Ledger describes collections of financial entries that receive a running
// balance per account.
type Ledger struct {
	Collections  []string
	OwnerField   string
	AccountField string
	AmountField  string
	DateField    string
	// TiebreakField orders entries sharing a date.
	TiebreakField string
	OutputField   string
}

// DefaultLedger returns the ledger configuration for the "transactions" collection.
func DefaultLedger() Ledger {
	return Ledger{
		Collections:   []string{"transactions"},
		OwnerField:    query.DefaultOwnerField,
		AccountField:  "accountId",
		AmountField:   "amount",
		DateField:     "date",
		TiebreakField: "id",
		OutputField:   "balance",
	}
}

// Applies reports whether collection is a ledger collection.
func (l Ledger) Applies(collection string) bool {
	return slices.Contains(l.Collections, collection)
}

// Scope returns the match that restricts a ledger to one owner and, when
// account is non-nil, one account.
func (l Ledger) Scope(owner string, account any) map[string]any {
	scope := map[string]any{l.OwnerField: owner}
	if account != nil {
		scope[l.AccountField] = account
	}
	return scope
}

// AccountScope extracts a sub-account restriction from a compiled filter.
// Only a plain equality on the account field qualifies; operator objects
// and absent fields return nil.
func (l Ledger) AccountScope(filter map[string]any) any {
	v, ok := filter[l.AccountField]
	if !ok || v == nil {
		return nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil
	}
	return v
}

// BalanceStages computes the running balance for every entry in scope.
// Amounts are summed as integer cents so cumulative totals do not drift.
func (l Ledger) BalanceStages() []Stage {
	return []Stage{
		{OpAddFields: map[string]any{
			amountCentsField: map[string]any{
				"$round": []any{
					map[string]any{"$multiply": []any{"$" + l.AmountField, 100}},
					0,
				},
			},
		}},
		{OpSetWindowFields: map[string]any{
			"partitionBy": "$" + l.AccountField,
			"sortBy": query.SortSpec{
				{Field: l.DateField},
				{Field: l.TiebreakField},
			},
			"output": map[string]any{
				balanceCentsField: map[string]any{
					"$sum":   "$" + amountCentsField,
					"window": map[string]any{"documents": []any{"unbounded", "current"}},
				},
			},
		}},
		{OpAddFields: map[string]any{
			l.OutputField: map[string]any{"$divide": []any{"$" + balanceCentsField, 100}},
		}},
		{OpUnset: []any{amountCentsField, balanceCentsField}},
	}
}
