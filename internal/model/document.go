package model

import "time"

// IDField is the application-level identifier carried inside every document.
// It is distinct from any key the storage engine uses internally.
const IDField = "id"

// Timestamp fields maintained by the service on create and update.
const (
	CreatedAtField = "createdAt"
	UpdatedAtField = "updatedAt"
)

// Document is a schema-free record: string keys mapping to untyped values,
// with nested maps and slices as decoded from JSON.
type Document map[string]any

// ID returns the document's application-level identifier, or "" when unset.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Touch stamps updatedAt (and createdAt, when missing) with now.
func (d Document) Touch(now time.Time) {
	ts := now.UTC().Format(time.RFC3339Nano)
	if _, ok := d[CreatedAtField]; !ok {
		d[CreatedAtField] = ts
	}
	d[UpdatedAtField] = ts
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	ID   string `json:"id"`
	Plan string `json:"plan,omitempty"`
}
