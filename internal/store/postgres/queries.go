package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/docq/internal/engine"
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/store"
)

// namedQueryColumns is the column list used for SELECT statements on the named_queries table.
const namedQueryColumns = `name, collection_name, pipeline, description, created_at, updated_at`

// uniqueViolation is the Postgres error code for a duplicate key.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func queryInsertDocument(ctx context.Context, db executor, collection string, doc model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		collection, doc.ID(), data, now,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("document %s/%s: %w", collection, doc.ID(), store.ErrConflict)
	}
	return err
}

func queryGetDocument(ctx context.Context, db executor, collection, id string) (model.Document, error) {
	row := db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func queryUpdateDocument(ctx context.Context, db executor, collection, id string, doc model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE documents SET data = $3, updated_at = $4
		WHERE collection = $1 AND id = $2`,
		collection, id, data, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryDeleteDocument(ctx context.Context, db executor, collection, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// queryAggregate fetches the collection, narrowed by whatever part of a
// leading $match can be expressed in SQL, and runs the full pipeline over it.
func queryAggregate(ctx context.Context, db executor, collection string, stages []map[string]any) ([]model.Document, error) {
	var filter map[string]any
	if len(stages) > 0 {
		if m, ok := stages[0]["$match"].(map[string]any); ok && len(stages[0]) == 1 {
			filter = m
		}
	}
	docs, err := fetchDocuments(ctx, db, collection, filter)
	if err != nil {
		return nil, err
	}
	out, err := engine.Run(docs, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	return out, nil
}

func queryCount(ctx context.Context, db executor, collection string, filter map[string]any) (int, error) {
	docs, err := fetchDocuments(ctx, db, collection, filter)
	if err != nil {
		return 0, err
	}
	n, err := engine.Count(docs, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func fetchDocuments(ctx context.Context, db executor, collection string, filter map[string]any) ([]model.Document, error) {
	q := psql.Select("data").From("documents").Where(sq.Eq{"collection": collection})
	if cond, ok := prefilter(filter); ok {
		q = q.Where(cond)
	}
	query, args, err := q.OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build document query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan documents: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return docs, nil
}

func queryRegisterQuery(ctx context.Context, db executor, q *model.NamedQuery) (*model.NamedQuery, error) {
	pipeline, err := json.Marshal(q.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("encode pipeline: %w", err)
	}
	row := db.QueryRowContext(ctx, `
		INSERT INTO named_queries (name, collection_name, pipeline, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (name) DO UPDATE SET
			collection_name = EXCLUDED.collection_name,
			pipeline = EXCLUDED.pipeline,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
		RETURNING `+namedQueryColumns,
		q.Name, q.CollectionName, pipeline, nullString(q.Description), time.Now().UTC(),
	)
	out, err := scanNamedQuery(row, true)
	if err != nil {
		return nil, fmt.Errorf("register query: %w", err)
	}
	return out, nil
}

func queryGetQuery(ctx context.Context, db executor, name string) (*model.NamedQuery, error) {
	row := db.QueryRowContext(ctx, `SELECT `+namedQueryColumns+` FROM named_queries WHERE name = $1`, name)
	q, err := scanNamedQuery(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}
	return q, nil
}

func queryDeleteQuery(ctx context.Context, db executor, name string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM named_queries WHERE name = $1`, name)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryListQueries(ctx context.Context, db executor, withPipeline bool) ([]*model.NamedQuery, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+namedQueryColumns+` FROM named_queries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var out []*model.NamedQuery
	for rows.Next() {
		q, err := scanNamedQuery(rows, withPipeline)
		if err != nil {
			return nil, fmt.Errorf("scan queries: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan queries: %w", err)
	}
	return out, nil
}
