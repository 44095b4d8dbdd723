// Package pipeline assembles ordered stage sequences for the document store.
//
// List queries become [scope?, ledger stages?, $match, $sort?, $skip?, $limit?].
// Named query templates become concrete pipelines through Substitute.
package pipeline

import "github.com/alfredjeanlab/docq/internal/query"

// Stage is one pipeline operation, a single-key map such as
// {"$match": {...}}. Stages are executed in order and never reordered.
type Stage = map[string]any

// Stage operator names.
const (
	OpMatch           = "$match"
	OpSort            = "$sort"
	OpSkip            = "$skip"
	OpLimit           = "$limit"
	OpAddFields       = "$addFields"
	OpSet             = "$set"
	OpUnset           = "$unset"
	OpProject         = "$project"
	OpSetWindowFields = "$setWindowFields"
	OpGroup           = "$group"
	OpCount           = "$count"
)

// Name returns the operator of a stage, or "" if the stage does not have
// exactly one key.
func Name(s Stage) string {
	if len(s) != 1 {
		return ""
	}
	for k := range s {
		return k
	}
	return ""
}

// Match builds a $match stage.
func Match(filter map[string]any) Stage {
	return Stage{OpMatch: filter}
}

// Sort builds a $sort stage that keeps key order.
func Sort(keys query.SortSpec) Stage {
	return Stage{OpSort: keys}
}

// Skip builds a $skip stage.
func Skip(n int) Stage {
	return Stage{OpSkip: n}
}

// Limit builds a $limit stage.
func Limit(n int) Stage {
	return Stage{OpLimit: n}
}

// Paginate appends $sort, $skip and $limit stages for the options that are
// set. Zero skip and limit are no-ops and are omitted.
func Paginate(stages []Stage, sort query.SortSpec, skip, limit *int) []Stage {
	if len(sort) > 0 {
		stages = append(stages, Sort(sort))
	}
	if skip != nil && *skip > 0 {
		stages = append(stages, Skip(*skip))
	}
	if limit != nil && *limit > 0 {
		stages = append(stages, Limit(*limit))
	}
	return stages
}
