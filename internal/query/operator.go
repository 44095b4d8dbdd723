package query

// Operator is a filter operator symbol as supplied by clients.
type Operator string

const (
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpGreater          Operator = ">"
	OpGreaterEqual     Operator = ">="
	OpLess             Operator = "<"
	OpLessEqual        Operator = "<="
	OpIn               Operator = "in"
	OpNotIn            Operator = "nin"
	OpArrayContains    Operator = "array-contains"
	OpArrayContainsAny Operator = "array-contains-any"
	OpExists           Operator = "exists"
	OpRegex            Operator = "regex"
	OpLike             Operator = "like"
)

// Predicate operator keys understood by the document store.
const (
	KeyEq      = "$eq"
	KeyNe      = "$ne"
	KeyGt      = "$gt"
	KeyGte     = "$gte"
	KeyLt      = "$lt"
	KeyLte     = "$lte"
	KeyIn      = "$in"
	KeyNin     = "$nin"
	KeyExists  = "$exists"
	KeyRegex   = "$regex"
	KeyOptions = "$options"
)

// comparisonKeys maps the merge-style comparison operators to their predicate key.
var comparisonKeys = map[Operator]string{
	OpNotEqual:     KeyNe,
	OpGreater:      KeyGt,
	OpGreaterEqual: KeyGte,
	OpLess:         KeyLt,
	OpLessEqual:    KeyLte,
}

// IsKnown reports whether op is one of the supported operator symbols.
func (op Operator) IsKnown() bool {
	switch op {
	case OpEqual, OpArrayContains, OpIn, OpNotIn, OpArrayContainsAny, OpExists, OpRegex, OpLike:
		return true
	}
	_, ok := comparisonKeys[op]
	return ok
}
