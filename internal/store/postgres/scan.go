package postgres

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/docq/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanDocument scans a single data column into a model.Document.
func scanDocument(row scannable) (model.Document, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) (model.Document, error) {
	var doc model.Document
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = model.Document{}
	}
	return doc, nil
}

// scanNamedQuery scans a row in namedQueryColumns order. The pipeline is
// decoded only when withPipeline is set.
func scanNamedQuery(row scannable, withPipeline bool) (*model.NamedQuery, error) {
	var (
		q           model.NamedQuery
		pipeline    []byte
		description sql.NullString
	)
	if err := row.Scan(&q.Name, &q.CollectionName, &pipeline, &description, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.Description = description.String
	if withPipeline && len(pipeline) > 0 {
		if err := json.Unmarshal(pipeline, &q.Pipeline); err != nil {
			return nil, fmt.Errorf("decode pipeline: %w", err)
		}
	}
	return &q, nil
}

// nullString converts an empty string to a NULL-valued sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
