package model

// ListMetadata describes the page returned by a list query.
type ListMetadata struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResult is the envelope returned for collection list queries.
type ListResult struct {
	Data     []Document   `json:"data"`
	Metadata ListMetadata `json:"metadata"`
}

// ExecutionMetadata reports how a named query was run.
type ExecutionMetadata struct {
	Total            int              `json:"total"`
	ExecutedPipeline []map[string]any `json:"executedPipeline"`
	QueryName        string           `json:"queryName"`
}

// ExecutionResult is the envelope returned for named query execution.
type ExecutionResult struct {
	Result   []Document        `json:"result"`
	Metadata ExecutionMetadata `json:"metadata"`
}
