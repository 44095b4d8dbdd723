package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/docq/internal/client"
	"github.com/alfredjeanlab/docq/internal/model"
	docqsync "github.com/alfredjeanlab/docq/internal/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"account=acc-1", "min=10", "flag=true", "tags=[\"a\",\"b\"]", "empty=", "expr=a=b"})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	want := map[string]any{
		"account": "acc-1",
		"min":     float64(10),
		"flag":    true,
		"tags":    []any{"a", "b"},
		"empty":   "",
		"expr":    "a=b",
	}
	gotJSON, _ := json.Marshal(got)
	wantJSON, _ := json.Marshal(want)
	if string(gotJSON) != string(wantJSON) {
		t.Errorf("params = %s, want %s", gotJSON, wantJSON)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("parseParams(%q) should fail", bad)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadQueryFile(t *testing.T) {
	yamlList := `queries:
  - name: byAccount
    collectionName: transactions
    description: Entries for one account
    pipeline:
      - $match:
          accountId: "{{account}}"
      - $sort:
          date: -1
  - name: recent
    collectionName: notes
`
	jsonSingle := `{"name":"one","collectionName":"notes","pipeline":[{"$limit":5}]}`

	var jsonl bytes.Buffer
	src := &staticQueries{queries: []*model.NamedQuery{{Name: "fromBackup", CollectionName: "c", UpdatedAt: time.Now()}}}
	if err := docqsync.ExportJSONL(context.Background(), src, &jsonl); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name      string
		file      string
		content   string
		wantNames []string
	}{
		{"yaml list", "queries.yaml", yamlList, []string{"byAccount", "recent"}},
		{"json single", "query.json", jsonSingle, []string{"one"}},
		{"json array", "queries.json", "[" + jsonSingle + "]", []string{"one"}},
		{"jsonl export", "backup.jsonl", jsonl.String(), []string{"fromBackup"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			qs, err := loadQueryFile(writeFile(t, tc.file, tc.content))
			if err != nil {
				t.Fatalf("loadQueryFile: %v", err)
			}
			if len(qs) != len(tc.wantNames) {
				t.Fatalf("got %d queries, want %d", len(qs), len(tc.wantNames))
			}
			for i, want := range tc.wantNames {
				if qs[i].Name != want {
					t.Errorf("query %d = %q, want %q", i, qs[i].Name, want)
				}
			}
		})
	}

	qs, err := loadQueryFile(writeFile(t, "q.yaml", yamlList))
	if err != nil {
		t.Fatal(err)
	}
	match := qs[0].Pipeline[0]["$match"].(map[string]any)
	if match["accountId"] != "{{account}}" || qs[0].CollectionName != "transactions" {
		t.Errorf("first query = %+v", qs[0])
	}
}

func TestLoadQueryFile_Errors(t *testing.T) {
	for name, content := range map[string]string{
		"scalar":       "just a string",
		"missing name": "collectionName: notes\n",
		"bad yaml":     "name: [unclosed",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := loadQueryFile(writeFile(t, "q.yaml", content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := loadQueryFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// staticQueries serves a fixed registry for export.
type staticQueries struct {
	queries []*model.NamedQuery
}

func (s *staticQueries) RegisterQuery(_ context.Context, q *model.NamedQuery) (*model.NamedQuery, error) {
	return q, nil
}
func (s *staticQueries) GetQuery(context.Context, string) (*model.NamedQuery, error) { return nil, nil }
func (s *staticQueries) DeleteQuery(context.Context, string) error                   { return nil }
func (s *staticQueries) ListQueries(context.Context) ([]*model.NamedQuery, error) {
	return s.queries, nil
}
func (s *staticQueries) ExportQueries(context.Context) ([]*model.NamedQuery, error) {
	return s.queries, nil
}

// fakeAPI is a minimal docq HTTP API recording requests.
type fakeAPI struct {
	requests []string
	bodies   []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/v1/queries/"):
		_, _ = w.Write(body)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/execute"):
		_, _ = io.WriteString(w, `{"result":[{"id":"t1","amount":5,"balance":5}],"metadata":{"total":1,"queryName":"byAccount","executedPipeline":[]}}`)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/collections/"):
		_, _ = io.WriteString(w, `{"data":[{"id":"n1","title":"hello"}],"metadata":{"total":4,"limit":1,"offset":0}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"not found"}`)
	}
}

// useFakeAPI points the command globals at a fake server for one test.
func useFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	fake := &fakeAPI{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c := client.NewHTTPClient(srv.URL, "")
	prevAPI, prevQuerier, prevJSON := api, querier, jsonOutput
	api, querier, jsonOutput = c, c, false
	t.Cleanup(func() { api, querier, jsonOutput = prevAPI, prevQuerier, prevJSON })
	return fake
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestQueryApplyCommand(t *testing.T) {
	fake := useFakeAPI(t)
	path := writeFile(t, "q.yaml", "- name: a\n  collectionName: notes\n- name: b\n  collectionName: notes\n")
	if err := queryApplyCmd.Flags().Set("file", path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = queryApplyCmd.Flags().Set("file", "") })

	out, err := runCmd(t, queryApplyCmd)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(fake.requests) != 2 || fake.requests[0] != "PUT /v1/queries/a" || fake.requests[1] != "PUT /v1/queries/b" {
		t.Errorf("requests = %v", fake.requests)
	}
	if !strings.Contains(out, "registered a (notes, 0 stages)") {
		t.Errorf("output = %q", out)
	}
}

func TestQueryExecCommand(t *testing.T) {
	fake := useFakeAPI(t)
	flags := queryExecCmd.Flags()
	for k, v := range map[string]string{"param": "account=acc-1", "sort": `{"date":-1,"id":1}`, "limit": "10"} {
		if err := flags.Set(k, v); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() {
		_ = flags.Set("sort", "")
		_ = flags.Lookup("param").Value.(pflag.SliceValue).Replace(nil)
		flags.Lookup("param").Changed = false
		flags.Lookup("limit").Changed = false
	})

	out, err := runCmd(t, queryExecCmd, "byAccount")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if fake.requests[0] != "POST /v1/queries/byAccount/execute" {
		t.Errorf("request = %s", fake.requests[0])
	}
	body := fake.bodies[0]
	for _, want := range []string{`"account":"acc-1"`, `"sort":{"date":-1,"id":1}`, `"limit":10`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
	if strings.Contains(body, `"skip"`) {
		t.Errorf("unset skip should be omitted: %s", body)
	}
	if !strings.Contains(out, "t1") || !strings.Contains(out, "1 of 1 document(s)") {
		t.Errorf("output = %q", out)
	}
}

func TestListCommand(t *testing.T) {
	fake := useFakeAPI(t)
	out, err := runCmd(t, listCmd, "notes")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if fake.requests[0] != "GET /v1/collections/notes" {
		t.Errorf("request = %s", fake.requests[0])
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "TITLE") || !strings.Contains(out, "hello") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "1 of 4 document(s)") {
		t.Errorf("footer missing: %q", out)
	}
}

func TestCommandAPIError(t *testing.T) {
	useFakeAPI(t)
	_, err := runCmd(t, queryShowCmd, "missing")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
}
