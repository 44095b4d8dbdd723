package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/ui"
)

const maxCellWidth = 40

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// tableColumns returns the requested fields, or "id" followed by every other
// top-level key seen in docs, sorted.
func tableColumns(docs []model.Document, fields []string) []string {
	if len(fields) > 0 {
		return fields
	}
	seen := map[string]bool{model.IDField: true}
	var cols []string
	for _, d := range docs {
		for k := range d {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	slices.Sort(cols)
	return append([]string{model.IDField}, cols...)
}

// cell formats a value for a table cell. Nested values are shown as JSON.
func cell(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		s = v
	case float64, bool:
		s = fmt.Sprint(v)
	default:
		b, _ := json.Marshal(v)
		s = string(b)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxCellWidth {
		s = s[:maxCellWidth-3] + "..."
	}
	return s
}

func printDocumentTable(w io.Writer, docs []model.Document, fields []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	cols := tableColumns(docs, fields)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
	for _, d := range docs {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cell(d[c])
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func printDocument(w io.Writer, doc model.Document) error {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", ui.RenderAccent(k), cell(doc[k]))
	}
	return tw.Flush()
}

func printQueryTable(w io.Writer, queries []*model.NamedQuery) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOLLECTION\tSTAGES\tUPDATED\tDESCRIPTION")
	for _, q := range queries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			q.Name, q.CollectionName, len(q.Pipeline),
			q.UpdatedAt.Format("2006-01-02 15:04"), cell(q.Description))
	}
	return tw.Flush()
}

func printPageFooter(w io.Writer, shown, total int) {
	fmt.Fprintln(w, ui.RenderMuted(fmt.Sprintf("%d of %d document(s)", shown, total)))
}
