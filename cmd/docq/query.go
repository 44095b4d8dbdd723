package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alfredjeanlab/docq/internal/model"
	docqsync "github.com/alfredjeanlab/docq/internal/sync"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var queryCmd = &cobra.Command{
	Use:     "query",
	Short:   "Manage and execute named queries",
	GroupID: "queries",
}

var queryApplyCmd = &cobra.Command{
	Use:   "apply -f <file>",
	Short: "Register every named query in a YAML, JSON or JSONL file",
	Long: `Register named queries from a file.

YAML and JSON files hold a single query, a list of queries, or a map with a
"queries" list. JSONL files are registry exports written by the server's
backup sync.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		queries, err := loadQueryFile(file)
		if err != nil {
			return err
		}
		for _, q := range queries {
			stored, err := api.RegisterQuery(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("registering %q: %w", q.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s, %d stages)\n",
				stored.Name, stored.CollectionName, len(stored.Pipeline))
		}
		return nil
	},
}

var queryRegisterCmd = &cobra.Command{
	Use:   "register <name> <collection>",
	Short: "Register a named query from an inline pipeline",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("pipeline")
		desc, _ := cmd.Flags().GetString("description")

		q := &model.NamedQuery{Name: args[0], CollectionName: args[1], Description: desc}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &q.Pipeline); err != nil {
				return fmt.Errorf("--pipeline must be a JSON array of stages: %w", err)
			}
		}
		stored, err := api.RegisterQuery(cmd.Context(), q)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), stored)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", stored.Name)
		return nil
	},
}

var queryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List named queries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, err := api.ListQueries(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), queries)
		}
		return printQueryTable(cmd.OutOrStdout(), queries)
	},
}

var queryShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a named query and its pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := api.GetQuery(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), q)
	},
}

var queryDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a named query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.DeleteQuery(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var queryExecCmd = &cobra.Command{
	Use:   "exec <name>",
	Short: "Execute a named query",
	Long: `Execute a named query.

Parameters are given as --param key=value. Values are parsed as JSON when
possible, so --param min=10 binds a number and --param id=abc a string.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := executionRequest(cmd)
		if err != nil {
			return err
		}
		res, err := querier.ExecuteNamedQuery(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, res)
		}
		fields, _ := cmd.Flags().GetStringSlice("fields")
		if err := printDocumentTable(out, res.Result, fields); err != nil {
			return err
		}
		printPageFooter(out, len(res.Result), res.Metadata.Total)
		return nil
	},
}

// executionRequest builds the request from --param, --sort, --skip and --limit.
func executionRequest(cmd *cobra.Command) (*model.ExecutionRequest, error) {
	pairs, _ := cmd.Flags().GetStringArray("param")
	params, err := parseParams(pairs)
	if err != nil {
		return nil, err
	}
	req := &model.ExecutionRequest{Params: params}

	if s, _ := cmd.Flags().GetString("sort"); s != "" {
		if err := json.Unmarshal([]byte(s), &req.Options.Sort); err != nil {
			return nil, fmt.Errorf("--sort must be a JSON object such as {\"date\":-1}: %w", err)
		}
	}
	if cmd.Flags().Changed("skip") {
		n, _ := cmd.Flags().GetInt("skip")
		req.Options.Skip = &n
	}
	if cmd.Flags().Changed("limit") {
		n, _ := cmd.Flags().GetInt("limit")
		req.Options.Limit = &n
	}
	return req, nil
}

// parseParams turns key=value pairs into a parameter map. Values that parse
// as JSON keep their JSON type; everything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q (want key=value)", p)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			params[k] = parsed
		} else {
			params[k] = v
		}
	}
	return params, nil
}

// loadQueryFile reads named queries from a YAML, JSON or JSONL file.
func loadQueryFile(path string) ([]*model.NamedQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return docqsync.ReadJSONL(bytes.NewReader(data))
	}

	// YAML is a superset of JSON, so one decoder serves both.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m, ok := doc.(map[string]any); ok {
		if list, ok := m["queries"]; ok {
			doc = list
		}
	}
	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("%s: expected a query or a list of queries", path)
	}

	queries := make([]*model.NamedQuery, 0, len(items))
	for i, item := range items {
		// Round-trip through JSON so the model's json tags apply.
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("%s: query %d: %w", path, i, err)
		}
		var q model.NamedQuery
		if err := json.Unmarshal(b, &q); err != nil {
			return nil, fmt.Errorf("%s: query %d: %w", path, i, err)
		}
		if q.Name == "" {
			return nil, fmt.Errorf("%s: query %d has no name", path, i)
		}
		queries = append(queries, &q)
	}
	return queries, nil
}

func init() {
	queryApplyCmd.Flags().StringP("file", "f", "", "file with named queries")
	queryRegisterCmd.Flags().StringP("pipeline", "p", "", "pipeline stages as a JSON array")
	queryRegisterCmd.Flags().String("description", "", "query description")

	queryExecCmd.Flags().StringArray("param", nil, "parameter as key=value (repeatable)")
	queryExecCmd.Flags().String("sort", "", "sort applied after the pipeline (JSON object)")
	queryExecCmd.Flags().Int("skip", 0, "documents to skip")
	queryExecCmd.Flags().Int("limit", 0, "maximum documents to return")
	queryExecCmd.Flags().StringSlice("fields", nil, "columns to show")

	queryCmd.AddCommand(queryApplyCmd, queryRegisterCmd, queryListCmd, queryShowCmd, queryDeleteCmd, queryExecCmd)
}
