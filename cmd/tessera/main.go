package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/cli"
	"github.com/tessera-ai/tessera/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "tessera",
		Short: "Tessera CLI - Context and knowledge indexing for AI agents",
		Long: `Tessera CLI provides commands to index sources and retrieve ranked context.

Environment variables:
  TESSERA_API_KEY   API key for authentication (required)
  TESSERA_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.IndexCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.ContextCmd())
	rootCmd.AddCommand(client.StatsCmd())
	rootCmd.AddCommand(client.RunsCmd())
	rootCmd.AddCommand(client.FragmentsCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
