package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/ui"
)

func TestTableColumns(t *testing.T) {
	docs := []model.Document{
		{"id": "a", "title": "x", "amount": 1.0},
		{"id": "b", "tags": []any{"t"}},
	}
	if got := strings.Join(tableColumns(docs, nil), ","); got != "id,amount,tags,title" {
		t.Errorf("columns = %s", got)
	}
	if got := strings.Join(tableColumns(docs, []string{"title"}), ","); got != "title" {
		t.Errorf("explicit columns = %s", got)
	}
	if got := strings.Join(tableColumns(nil, nil), ","); got != "id" {
		t.Errorf("empty columns = %s", got)
	}
}

func TestCell(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{10.5, "10.5"},
		{true, "true"},
		{map[string]any{"a": 1.0}, `{"a":1}`},
		{"line\nbreak", "line break"},
		{strings.Repeat("x", 50), strings.Repeat("x", 37) + "..."},
	} {
		if got := cell(tc.in); got != tc.want {
			t.Errorf("cell(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPrintDocumentTable(t *testing.T) {
	var buf bytes.Buffer
	docs := []model.Document{{"id": "n1", "title": "hello"}, {"id": "n2"}}
	if err := printDocumentTable(&buf, docs, nil); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "hello") {
		t.Errorf("table = %q", buf.String())
	}
}

func TestColorizeHelpOutput(t *testing.T) {
	ui.ForceNoColor()
	in := "Documents:\n  list        List documents\n\nFlags:\n      --url string   HTTP server URL (default \"http://localhost:8080\")\n"
	if got := colorizeHelpOutput(in); got != in {
		t.Errorf("without color the help text must be unchanged:\n%s", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "json", "warn")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	logger, err = newLogger(&buf, "text", "debug")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("debug should be enabled")
	}

	if _, err := newLogger(&buf, "xml", "info"); err == nil {
		t.Error("unknown format should fail")
	}
	if _, err := newLogger(&buf, "text", "loud"); err == nil {
		t.Error("unknown level should fail")
	}
}

func TestReadDocument(t *testing.T) {
	t.Cleanup(func() {
		_ = createCmd.Flags().Set("data", "")
		_ = createCmd.Flags().Set("file", "")
	})

	_ = createCmd.Flags().Set("data", `{"title":"x","n":2}`)
	doc, err := readDocument(createCmd)
	if err != nil || doc["title"] != "x" || doc["n"] != 2.0 {
		t.Fatalf("doc=%v err=%v", doc, err)
	}

	_ = createCmd.Flags().Set("data", "")
	createCmd.SetIn(strings.NewReader(`{"from":"stdin"}`))
	doc, err = readDocument(createCmd)
	if err != nil || doc["from"] != "stdin" {
		t.Fatalf("doc=%v err=%v", doc, err)
	}

	for _, bad := range []string{`[1,2]`, `null`, `nope`} {
		_ = createCmd.Flags().Set("data", bad)
		if _, err := readDocument(createCmd); err == nil {
			t.Errorf("readDocument(%s) should fail", bad)
		}
	}

	_ = createCmd.Flags().Set("data", `{}`)
	_ = createCmd.Flags().Set("file", "doc.json")
	if _, err := readDocument(createCmd); err == nil {
		t.Error("--data with --file should fail")
	}
}
