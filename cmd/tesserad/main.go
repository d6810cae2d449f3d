package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/cli"
	"github.com/tessera-ai/tessera/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tesserad",
		Short: "Tessera daemon and admin CLI",
		Long:  "Tessera daemon for running the API server and managing organizations, API keys, and indexing sources",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.OrgCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())
	rootCmd.AddCommand(admin.SourceCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
