package model

import "time"

// NamedQuery is a stored, reusable pipeline template addressable by name.
// Pipeline stages may contain {{identifier}} placeholders that are resolved
// at execution time.
type NamedQuery struct {
	Name           string           `json:"name"`
	CollectionName string           `json:"collectionName"`
	Pipeline       []map[string]any `json:"pipeline,omitempty"`
	Description    string           `json:"description,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// ExecutionOptions are appended to a named query's pipeline after substitution.
type ExecutionOptions struct {
	Sort  SortSpec `json:"sort,omitempty"`
	Skip  *int     `json:"skip,omitempty"`
	Limit *int     `json:"limit,omitempty"`
}

// ExecutionRequest carries the caller-supplied values for one named query run.
type ExecutionRequest struct {
	Params  map[string]any   `json:"params"`
	Options ExecutionOptions `json:"options"`
}
