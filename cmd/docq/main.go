package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/docq/internal/client"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	grpcAddr   string
	transport  string
	token      string
	jsonOutput bool

	// api serves every command; querier serves the read path and is the
	// gRPC client when --transport=grpc.
	api     client.Client
	querier client.Querier
)

func defaultHTTPURL() string {
	if s := os.Getenv("DOCQ_URL"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.URL != "" {
		return r.URL
	}
	return "http://localhost:8080"
}

func defaultGRPCAddr() string {
	if s := os.Getenv("DOCQ_GRPC"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.GRPCAddr != "" {
		return r.GRPCAddr
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("DOCQ_TOKEN"); s != "" {
		return s
	}
	r, _ := activeRemote()
	return r.Token
}

// noClient is used by commands that never talk to the server.
func noClient(*cobra.Command, []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:           "docq <command>",
	Short:         "Client and server for the docq document store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		httpClient := client.NewHTTPClient(httpURL, token)
		api = httpClient
		switch transport {
		case "http":
			querier = httpClient
		case "grpc":
			c, err := client.NewGRPCClient(grpcAddr, token)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			querier = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if querier != nil {
			querier.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc", defaultGRPCAddr(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport for list, exec and health (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "documents", Title: "Documents:"},
		&cobra.Group{ID: "queries", Title: "Named queries:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
