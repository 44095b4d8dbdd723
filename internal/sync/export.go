package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/store"
)

// FormatVersion identifies the export layout.
const FormatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	QueryCount int       `json:"query_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string            `json:"type"`
	Data *model.NamedQuery `json:"data"`
}

// ExportJSONL writes the named query registry to w: a header line, then
// one line per query ordered by name.
func ExportJSONL(ctx context.Context, src store.Queries, w io.Writer) error {
	queries, err := src.ExportQueries(ctx)
	if err != nil {
		return fmt.Errorf("export queries: %w", err)
	}
	return writeJSONL(w, queries, time.Now().UTC())
}

func writeJSONL(w io.Writer, queries []*model.NamedQuery, now time.Time) error {
	queries = slices.Clone(queries)
	slices.SortFunc(queries, func(a, b *model.NamedQuery) int { return strings.Compare(a.Name, b.Name) })

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    FormatVersion,
		Type:       "header",
		Timestamp:  now,
		QueryCount: len(queries),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, q := range queries {
		if err := enc.Encode(record{Type: "query", Data: q}); err != nil {
			return fmt.Errorf("encode query %s: %w", q.Name, err)
		}
	}
	return nil
}

// ReadJSONL parses an export produced by ExportJSONL. Unknown record types
// are skipped so newer exports stay readable.
func ReadJSONL(r io.Reader) ([]*model.NamedQuery, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var (
		out       []*model.NamedQuery
		sawHeader bool
		want      int
	)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if !sawHeader {
			var h header
			if err := json.Unmarshal([]byte(text), &h); err != nil || h.Type != "header" {
				return nil, fmt.Errorf("line %d: expected export header", line)
			}
			if h.Version != FormatVersion {
				return nil, fmt.Errorf("unsupported export version %q", h.Version)
			}
			sawHeader, want = true, h.QueryCount
			continue
		}
		var rec struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Type != "query" {
			continue
		}
		var q model.NamedQuery
		if err := json.Unmarshal(rec.Data, &q); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, &q)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, errors.New("empty export")
	}
	if len(out) != want {
		return nil, fmt.Errorf("export is truncated: header lists %d queries, found %d", want, len(out))
	}
	return out, nil
}
