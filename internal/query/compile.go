// Package query compiles client list queries into document-store filters.
//
// A query arrives as a JSON Spec: a list of field/operator/value conditions
// plus sort and pagination options. The Compiler folds the conditions, in
// order, into one predicate per field and derives the sort, skip and limit
// options. Compilation is pure; a Compiler may be shared between goroutines.
package query

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/alfredjeanlab/docq/internal/model"
)

// DefaultOwnerField is the document field that identifies the owning principal.
const DefaultOwnerField = "userId"

// Options are the sort and pagination settings derived from a Spec.
// A nil Skip or Limit means the option was not supplied.
type Options struct {
	Sort  SortSpec
	Skip  *int
	Limit *int
}

// Compiled is the result of compiling a Spec.
type Compiled struct {
	// Filter maps each field to a scalar (equality) or an operator object.
	Filter  map[string]any
	Options Options
}

// Compiler turns a Spec into a Compiled filter.
type Compiler struct {
	// OwnerField is forced to the caller's principal id whenever a
	// condition references it.
	OwnerField string
	Mode       Mode
	Logger     *slog.Logger
}

// NewCompiler returns a Compiler. An empty ownerField selects
// DefaultOwnerField and a nil logger selects slog.Default().
func NewCompiler(ownerField string, mode Mode, logger *slog.Logger) *Compiler {
	if ownerField == "" {
		ownerField = DefaultOwnerField
	}
	return &Compiler{OwnerField: ownerField, Mode: mode, Logger: logger}
}

// Parse decodes query text; see the package-level Parse.
func (c *Compiler) Parse(text string) (Spec, error) {
	return Parse(text)
}

// CompileString parses and compiles query text in one step.
func (c *Compiler) CompileString(principal model.Principal, text string) (*Compiled, error) {
	spec, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return c.Compile(principal, spec)
}

// Compile folds the spec's conditions into a filter and derives its options.
// In Lenient mode it never fails. In Strict mode every malformed condition,
// unknown operator and invalid option is reported in one aggregated error.
func (c *Compiler) Compile(principal model.Principal, spec Spec) (*Compiled, error) {
	var errs *multierror.Error
	acc := make(map[string]any, len(spec.Conditions))

	for i, cond := range spec.Conditions {
		if cond.Field == "" || cond.Operator == "" || !cond.HasValue() {
			if c.Mode == Strict {
				errs = multierror.Append(errs, fmt.Errorf("condition %d: %w", i, ErrMalformedCondition))
				continue
			}
			c.logger().Warn("dropping malformed query condition",
				"index", i, "field", cond.Field, "operator", string(cond.Operator))
			continue
		}
		if !cond.Operator.IsKnown() && c.Mode == Strict {
			errs = multierror.Append(errs, fmt.Errorf("condition %d: %w %q", i, ErrUnknownOperator, cond.Operator))
			continue
		}

		// Any condition on the owner field becomes equality with the caller.
		if cond.Field == c.ownerField() {
			merge(acc, cond.Field, OpEqual, principal.ID)
			continue
		}
		value := cond.Value
		if cond.Operator != OpRegex && cond.Operator != OpLike {
			value = coerceAll(value)
		}
		merge(acc, cond.Field, cond.Operator, value)
	}

	opts, optErrs := c.options(spec)
	for _, err := range optErrs {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &Compiled{Filter: finalize(acc), Options: opts}, nil
}

func (c *Compiler) options(spec Spec) (Options, []error) {
	var opts Options
	var errs []error

	if len(spec.SortObject) > 0 {
		opts.Sort = append(SortSpec(nil), spec.SortObject...)
	} else {
		field := spec.OrderByField
		if field == "" {
			field = DefaultOrderByField
		}
		dir := strings.TrimSpace(spec.OrderDirection)
		if dir == "" {
			dir = DefaultOrderDirection
		}
		if c.Mode == Strict && !strings.EqualFold(dir, "asc") && !strings.EqualFold(dir, "desc") {
			errs = append(errs, fmt.Errorf("%w: order direction %q", ErrInvalidOption, dir))
		}
		opts.Sort = SortSpec{{Field: field, Desc: !strings.EqualFold(dir, "asc")}}
	}

	skip := spec.OffsetCount
	if spec.StartAfter != nil {
		if n, ok := toInt(spec.StartAfter); ok {
			skip = &n
		}
	}
	var err error
	if opts.Skip, err = c.nonNegative("skip", skip); err != nil {
		errs = append(errs, err)
	}
	if opts.Limit, err = c.nonNegative("limit", spec.LimitCount); err != nil {
		errs = append(errs, err)
	}
	return opts, errs
}

// nonNegative drops a negative option (Lenient) or rejects it (Strict).
func (c *Compiler) nonNegative(name string, v *int) (*int, error) {
	if v == nil || *v >= 0 {
		return v, nil
	}
	if c.Mode == Strict {
		return nil, fmt.Errorf("%w: negative %s %d", ErrInvalidOption, name, *v)
	}
	c.logger().Warn("ignoring negative query option", "option", name, "value", *v)
	return nil, nil
}

func (c *Compiler) ownerField() string {
	if c.OwnerField == "" {
		return DefaultOwnerField
	}
	return c.OwnerField
}

func (c *Compiler) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
