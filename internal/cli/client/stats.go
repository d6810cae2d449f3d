package client

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// RunAggregates represents run totals in the stats API response.
type RunAggregates struct {
	TotalRuns       int    `json:"total_runs"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	Cancelled       int    `json:"cancelled"`
	TotalProcessed  int    `json:"total_processed"`
	TotalStored     int    `json:"total_stored"`
	LastCompletedAt string `json:"last_completed_at,omitempty"`
}

// StatsResponse represents the stats API response.
type StatsResponse struct {
	Fragments      map[string]int `json:"fragments"`
	TotalFragments int            `json:"total_fragments"`
	Edges          int            `json:"edges"`
	Runs           *RunAggregates `json:"runs,omitempty"`
	RecentRuns     []Run          `json:"recent_runs,omitempty"`
}

// StatsCmd creates the stats command.
func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  "Shows fragment counts by type, edge counts, and indexing run totals.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runStats(cmd, outputJSON)
		},
	}

	return cmd
}

func runStats(cmd *cobra.Command, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/stats")
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	var stats StatsResponse
	if err := json.Unmarshal(resp.Data, &stats); err != nil {
		return fmt.Errorf("failed to parse stats: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Fragments: %d\n", stats.TotalFragments)
	types := make([]string, 0, len(stats.Fragments))
	for t := range stats.Fragments {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %s: %d\n", t, stats.Fragments[t])
	}
	fmt.Printf("Edges: %d\n", stats.Edges)

	if stats.Runs != nil {
		fmt.Printf("\nRuns: %d total (%d completed, %d failed, %d cancelled)\n",
			stats.Runs.TotalRuns, stats.Runs.Completed, stats.Runs.Failed, stats.Runs.Cancelled)
		fmt.Printf("  Units processed: %d, stored: %d\n", stats.Runs.TotalProcessed, stats.Runs.TotalStored)
		if stats.Runs.LastCompletedAt != "" {
			fmt.Printf("  Last completed: %s\n", stats.Runs.LastCompletedAt)
		}
	}

	if len(stats.RecentRuns) > 0 {
		fmt.Println("\nRecent runs:")
		for _, run := range stats.RecentRuns {
			fmt.Printf("  %s\n", formatRunLine(run))
		}
	}

	return nil
}
