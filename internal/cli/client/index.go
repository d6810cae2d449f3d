package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// IndexRequest represents the index trigger API request.
type IndexRequest struct {
	SourceID string `json:"source_id"`
	Scope    string `json:"scope,omitempty"`
}

// IndexResponse represents the index trigger API response.
type IndexResponse struct {
	RunID string `json:"run_id"`
}

// IndexCmd creates the index command.
func IndexCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "index <source-id>",
		Short: "Trigger indexing for a source",
		Long:  "Triggers an incremental indexing run for a registered source. Use --full to reindex everything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runIndex(cmd, args[0], full, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Reindex all units instead of only changed ones")

	return cmd
}

func runIndex(cmd *cobra.Command, sourceID string, full bool, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	req := IndexRequest{SourceID: sourceID}
	if full {
		req.Scope = "full"
	}

	resp, err := api.Post("/index", req)
	if err != nil {
		return fmt.Errorf("failed to trigger indexing: %w", err)
	}

	var indexResp IndexResponse
	if err := json.Unmarshal(resp.Data, &indexResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(indexResp, "", "  ")
		fmt.Println(string(output))
	} else {
		scope := "incremental"
		if full {
			scope = "full"
		}
		fmt.Printf("Indexing started (%s)\n", scope)
		fmt.Printf("Run ID: %s\n", indexResp.RunID)
		fmt.Printf("Track progress with: tessera runs get %s\n", indexResp.RunID)
	}

	return nil
}
