package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "List documents in a collection, optionally filtered",
	Long: `List documents in a collection.

The --query flag takes a filter document such as
  {"$query": {"amount": {"$gte": 10}}, "$orderby": {"date": -1}, "$limit": 20}
or a bare condition map, which is treated as the $query.`,
	GroupID: "documents",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, _ := cmd.Flags().GetString("query")
		fields, _ := cmd.Flags().GetStringSlice("fields")

		res, err := querier.ListDocuments(cmd.Context(), args[0], q)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, res)
		}
		if err := printDocumentTable(out, res.Data, fields); err != nil {
			return err
		}
		printPageFooter(out, len(res.Data), res.Metadata.Total)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:     "get <collection> <id>",
	Short:   "Show a document",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := api.GetDocument(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), doc)
		}
		return printDocument(cmd.OutOrStdout(), doc)
	},
}

var createCmd = &cobra.Command{
	Use:     "create <collection>",
	Short:   "Create a document from --data, --file or stdin",
	GroupID: "documents",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(cmd)
		if err != nil {
			return err
		}
		created, err := api.CreateDocument(cmd.Context(), args[0], doc)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s/%s\n", args[0], created.ID())
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <collection> <id>",
	Short:   "Replace a document's fields from --data, --file or stdin",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(cmd)
		if err != nil {
			return err
		}
		updated, err := api.UpdateDocument(cmd.Context(), args[0], args[1], doc)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), updated)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s/%s\n", args[0], updated.ID())
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <collection> <id>",
	Short:   "Delete a document",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.DeleteDocument(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
		return nil
	},
}

// readDocument decodes a JSON object from --data, --file, or stdin.
func readDocument(cmd *cobra.Command) (model.Document, error) {
	data, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("file")

	var raw []byte
	switch {
	case data != "" && file != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case data != "":
		raw = []byte(data)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		raw = b
	}

	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document must be a JSON object")
	}
	return doc, nil
}

func init() {
	listCmd.Flags().StringP("query", "q", "", "filter query (JSON)")
	listCmd.Flags().StringSlice("fields", nil, "columns to show (default: all top-level fields)")

	for _, c := range []*cobra.Command{createCmd, updateCmd} {
		c.Flags().StringP("data", "d", "", "document as inline JSON")
		c.Flags().StringP("file", "f", "", "read the document from a JSON file")
	}
}
