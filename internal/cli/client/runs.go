package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// RunError represents one unit-level error in a run.
type RunError struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	UnitRef  string `json:"unit_ref,omitempty"`
}

// Run represents an indexing run in API responses.
type Run struct {
	RunID       string     `json:"run_id"`
	SourceID    string     `json:"source_id"`
	Scope       string     `json:"scope"`
	State       string     `json:"state"`
	Processed   int        `json:"processed"`
	Stored      int        `json:"stored"`
	Skipped     int        `json:"skipped"`
	Removed     int        `json:"removed"`
	Errors      []RunError `json:"errors,omitempty"`
	StartedAt   string     `json:"started_at"`
	CompletedAt string     `json:"completed_at,omitempty"`
}

// ListRunsResponse represents the runs list API response.
type ListRunsResponse struct {
	Runs    []Run  `json:"runs"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// RunsCmd creates the runs command with subcommands.
func RunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect indexing runs",
		Long:  "List, inspect, and cancel indexing runs.",
	}

	cmd.AddCommand(RunsListCmd())
	cmd.AddCommand(RunsGetCmd())
	cmd.AddCommand(RunsCancelCmd())

	return cmd
}

// RunsListCmd creates the runs list command.
func RunsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexing runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRunsList(cmd, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runRunsList(cmd *cobra.Command, limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	path := "/runs"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	var listResp ListRunsResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse runs: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	for _, run := range listResp.Runs {
		fmt.Println(formatRunLine(run))
	}
	if listResp.HasMore && listResp.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", listResp.Cursor)
	}

	return nil
}

// RunsGetCmd creates the runs get command.
func RunsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one indexing run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRunsGet(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runRunsGet(cmd *cobra.Command, runID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/runs/" + runID)
	if err != nil {
		return fmt.Errorf("failed to fetch run: %w", err)
	}

	var run Run
	if err := json.Unmarshal(resp.Data, &run); err != nil {
		return fmt.Errorf("failed to parse run: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Run: %s\n", run.RunID)
	fmt.Printf("Source: %s\n", run.SourceID)
	fmt.Printf("Scope: %s\n", run.Scope)
	fmt.Printf("State: %s\n", run.State)
	fmt.Printf("Units: %d processed, %d stored, %d skipped, %d removed\n",
		run.Processed, run.Stored, run.Skipped, run.Removed)
	fmt.Printf("Started: %s\n", run.StartedAt)
	if run.CompletedAt != "" {
		fmt.Printf("Completed: %s\n", run.CompletedAt)
	}
	if len(run.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(run.Errors))
		for _, runErr := range run.Errors {
			if runErr.UnitRef != "" {
				fmt.Printf("  [%s] %s: %s (%s)\n", runErr.Provider, runErr.Code, runErr.Message, runErr.UnitRef)
			} else {
				fmt.Printf("  [%s] %s: %s\n", runErr.Provider, runErr.Code, runErr.Message)
			}
		}
	}

	return nil
}

// RunsCancelCmd creates the runs cancel command.
func RunsCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel an active indexing run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRunsCancel(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runRunsCancel(cmd *cobra.Command, runID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/runs/"+runID+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("failed to cancel run: %w", err)
	}

	if outputJSON {
		fmt.Println(string(resp.Data))
		return nil
	}

	fmt.Printf("Cancellation requested for run %s\n", runID)
	return nil
}

func formatRunLine(run Run) string {
	line := fmt.Sprintf("%s  %s  %-11s  %-10s  %d/%d units", run.RunID, run.SourceID, run.Scope, run.State, run.Stored, run.Processed)
	if len(run.Errors) > 0 {
		line += fmt.Sprintf("  (%d errors)", len(run.Errors))
	}
	return line
}
