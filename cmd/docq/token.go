package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a signed access token for a principal",
	Long: `Mint an HS256 access token for a principal.

The signing secret is read from --secret or DOCQ_JWT_SECRET and must match
the server's DOCQ_JWT_SECRET.`,
	GroupID:           "system",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = os.Getenv("DOCQ_JWT_SECRET")
		}
		if secret == "" {
			return fmt.Errorf("a signing secret is required (--secret or DOCQ_JWT_SECRET)")
		}
		plan, _ := cmd.Flags().GetString("plan")
		expiry, _ := cmd.Flags().GetDuration("expiry")

		tok, err := auth.NewToken([]byte(secret), model.Principal{ID: args[0], Plan: plan}, expiry)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", "", "HS256 signing secret")
	tokenCmd.Flags().String("plan", "", "plan claim used for quota limits")
	tokenCmd.Flags().Duration("expiry", 24*time.Hour, "token lifetime (0 = never expires)")
}
