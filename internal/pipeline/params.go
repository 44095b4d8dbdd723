package pipeline

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/alfredjeanlab/docq/internal/query"
)

var placeholder = regexp.MustCompile(`^\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}$`)

// Substitute returns a copy of template in which every string leaf that is
// exactly one {{identifier}} token is replaced by params[identifier]. The
// replacement keeps the parameter's type. Tokens without a parameter are
// left as-is in Lenient mode and reported as query.ErrMissingParam in
// Strict mode. The template is never modified.
func Substitute(template []Stage, params map[string]any, mode query.Mode) ([]Stage, error) {
	var errs *multierror.Error
	missing := func(name string) {
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", query.ErrMissingParam, name))
	}

	out := make([]Stage, len(template))
	for i, stage := range template {
		out[i] = substitute(stage, params, mode, missing).(map[string]any)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func substitute(v any, params map[string]any, mode query.Mode, missing func(string)) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = substitute(e, params, mode, missing)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = substitute(e, params, mode, missing)
		}
		return s
	case string:
		match := placeholder.FindStringSubmatch(t)
		if match == nil {
			return t
		}
		if p, ok := params[match[1]]; ok {
			return deepCopy(p)
		}
		if mode == query.Strict {
			missing(match[1])
		}
		return t
	default:
		return t
	}
}

// deepCopy copies nested maps and slices so that results never share
// structure with the caller's params.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	default:
		return t
	}
}

// Placeholders lists the distinct parameter names referenced by template,
// sorted by name.
func Placeholders(template []Stage) []string {
	var names []string
	seen := map[string]bool{}
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			for _, e := range t {
				walk(e)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		case string:
			if m := placeholder.FindStringSubmatch(t); m != nil && !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	for _, s := range template {
		walk(s)
	}
	sort.Strings(names)
	return names
}
