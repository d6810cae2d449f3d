package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// SearchResult represents one ranked search result.
type SearchResult struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Snippet         string  `json:"snippet,omitempty"`
	Score           float32 `json:"score"`
	FragmentType    string  `json:"fragment_type"`
	SourceReference string  `json:"source_reference,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Degraded bool           `json:"degraded,omitempty"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		types     []string
		tags      []string
		projectID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed fragments",
		Long:  "Searches indexed fragments with combined semantic and full-text ranking.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(cmd, args[0], types, tags, projectID, limit, outputJSON)
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Filter by fragment type (code_symbol, knowledge, session_summary)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Filter by tags")
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Filter by project ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, types, tags []string, projectID string, limit int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("query", query)
	if len(types) > 0 {
		params.Set("type", strings.Join(types, ","))
	}
	if len(tags) > 0 {
		params.Set("tags", strings.Join(tags, ","))
	}
	if projectID != "" {
		params.Set("project_id", projectID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	resp, err := api.Get("/search?" + params.Encode())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
	} else {
		if len(searchResp.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		if searchResp.Degraded {
			fmt.Println("Note: semantic ranking unavailable, showing text matches only.")
			fmt.Println()
		}

		fmt.Printf("Found %d results:\n\n", len(searchResp.Results))
		for i, result := range searchResp.Results {
			fmt.Printf("%d. %s (%.2f) [%s]\n", i+1, result.Title, result.Score, result.FragmentType)
			if result.Snippet != "" {
				snippet := result.Snippet
				if len(snippet) > 100 {
					snippet = snippet[:97] + "..."
				}
				fmt.Printf("   %s\n", snippet)
			}
			if result.SourceReference != "" {
				fmt.Printf("   Source: %s\n", result.SourceReference)
			}
			fmt.Printf("   ID: %s\n", result.ID)
			if i < len(searchResp.Results)-1 {
				fmt.Println(strings.Repeat("-", 40))
			}
		}
	}

	return nil
}
