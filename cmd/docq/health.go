package main

import (
	"fmt"

	"github.com/alfredjeanlab/docq/internal/ui"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the docq service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := querier.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", ui.RenderStatus(status, status == "ok"))
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}
