package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// Fragment represents a stored fragment from the API.
type Fragment struct {
	ID              string   `json:"id"`
	ProjectID       string   `json:"project_id,omitempty"`
	Type            string   `json:"type"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Truncated       bool     `json:"truncated,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	SourceType      string   `json:"source_type"`
	SourceReference string   `json:"source_reference"`
	EmbeddingStatus string   `json:"embedding_status"`
	ConfidenceScore float32  `json:"confidence_score,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// RelatedFragment represents a fragment found by graph traversal.
type RelatedFragment struct {
	Fragment Fragment `json:"fragment"`
	Depth    int      `json:"depth"`
}

// FragmentsCmd creates the fragments command with subcommands.
func FragmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fragments",
		Short: "Inspect stored fragments",
		Long:  "Get, list, and walk relationships of stored fragments.",
	}

	cmd.AddCommand(FragmentsGetCmd())
	cmd.AddCommand(FragmentsListCmd())
	cmd.AddCommand(FragmentsRelatedCmd())

	return cmd
}

// FragmentsGetCmd creates the fragments get command.
func FragmentsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <id>",
		Short:   "Get a fragment by ID",
		Long:    "Retrieves a fragment by its ID and displays the full content.",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runFragmentsGet(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runFragmentsGet(cmd *cobra.Command, fragmentID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/fragments/" + fragmentID)
	if err != nil {
		return fmt.Errorf("failed to get fragment: %w", err)
	}

	var fragment Fragment
	if err := json.Unmarshal(resp.Data, &fragment); err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(fragment, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printFragment(fragment)
	return nil
}

// FragmentsListCmd creates the fragments list command.
func FragmentsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored fragments",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runFragmentsList(cmd, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runFragmentsList(cmd *cobra.Command, limit int, cursor string, outputJSON bool) error {
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

	path := "/fragments"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list fragments: %w", err)
	}

	var listResp struct {
		Fragments []Fragment `json:"fragments"`
		Cursor    string     `json:"cursor,omitempty"`
		HasMore   bool       `json:"has_more"`
	}
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse fragments: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Fragments) == 0 {
		fmt.Println("No fragments found.")
		return nil
	}

	for _, fragment := range listResp.Fragments {
		fmt.Printf("%s  %-15s  %s\n", fragment.ID, fragment.Type, fragment.Title)
	}
	if listResp.HasMore && listResp.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", listResp.Cursor)
	}

	return nil
}

// FragmentsRelatedCmd creates the fragments related command.
func FragmentsRelatedCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "related <id>",
		Short: "Show fragments related through the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runFragmentsRelated(cmd, args[0], depth, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "Traversal depth (0 uses server default)")

	return cmd
}

func runFragmentsRelated(cmd *cobra.Command, fragmentID string, depth int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	path := "/fragments/" + fragmentID + "/related"
	if depth > 0 {
		path += "?depth=" + strconv.Itoa(depth)
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to fetch related fragments: %w", err)
	}

	var relatedResp struct {
		Related []RelatedFragment `json:"related"`
	}
	if err := json.Unmarshal(resp.Data, &relatedResp); err != nil {
		return fmt.Errorf("failed to parse related fragments: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(relatedResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(relatedResp.Related) == 0 {
		fmt.Println("No related fragments found.")
		return nil
	}

	for _, related := range relatedResp.Related {
		fmt.Printf("depth %d  %s  %-15s  %s\n", related.Depth, related.Fragment.ID, related.Fragment.Type, related.Fragment.Title)
	}

	return nil
}

func printFragment(fragment Fragment) {
	fmt.Printf("Title: %s\n", fragment.Title)
	fmt.Printf("Type: %s\n", fragment.Type)
	fmt.Printf("Source: %s (%s)\n", fragment.SourceReference, fragment.SourceType)
	if len(fragment.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(fragment.Tags, ", "))
	}
	fmt.Printf("Embedding: %s\n", fragment.EmbeddingStatus)
	if fragment.CreatedAt != "" {
		fmt.Printf("Created: %s\n", fragment.CreatedAt)
	}
	if fragment.UpdatedAt != "" {
		fmt.Printf("Updated: %s\n", fragment.UpdatedAt)
	}
	fmt.Println()
	fmt.Println("--- Content ---")
	fmt.Println(fragment.Content)
	if fragment.Truncated {
		fmt.Println("\n(content truncated at ingest; see source for the full text)")
	}
}
