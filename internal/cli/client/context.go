package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ContextRequest represents the context bundle API request.
type ContextRequest struct {
	Query       string   `json:"query"`
	Types       []string `json:"types,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	TokenBudget int      `json:"token_budget,omitempty"`
	ExpandDepth int      `json:"expand_depth,omitempty"`
}

// ContextFragment represents one fragment in a context bundle.
type ContextFragment struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Content          string            `json:"content"`
	Type             string            `json:"type"`
	SourceReference  string            `json:"source_reference,omitempty"`
	Score            float32           `json:"score"`
	Tokens           int               `json:"tokens"`
	ContentTruncated bool              `json:"content_truncated,omitempty"`
	Related          []ContextFragment `json:"related,omitempty"`
}

// ContextResponse represents the context bundle API response.
type ContextResponse struct {
	Fragments   []ContextFragment `json:"fragments"`
	TotalTokens int               `json:"total_tokens"`
	Truncated   bool              `json:"truncated,omitempty"`
	Degraded    bool              `json:"degraded,omitempty"`
}

// ContextCmd creates the context command.
func ContextCmd() *cobra.Command {
	var (
		types       []string
		tags        []string
		projectID   string
		tokenBudget int
		expandDepth int
	)

	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Assemble a context bundle",
		Long:  "Assembles a token-bounded bundle of ranked fragments with related context.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			req := ContextRequest{
				Query:       args[0],
				Types:       types,
				Tags:        tags,
				ProjectID:   projectID,
				TokenBudget: tokenBudget,
				ExpandDepth: expandDepth,
			}
			return runContext(cmd, req, outputJSON)
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Filter by fragment type (code_symbol, knowledge, session_summary)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Filter by tags")
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Filter by project ID")
	cmd.Flags().IntVar(&tokenBudget, "budget", 0, "Token budget for the bundle (0 uses server default)")
	cmd.Flags().IntVar(&expandDepth, "depth", 0, "Relationship expansion depth (0 uses server default)")

	return cmd
}

func runContext(cmd *cobra.Command, req ContextRequest, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.GetWithBody("/context", req)
	if err != nil {
		return fmt.Errorf("context request failed: %w", err)
	}

	var ctxResp ContextResponse
	if err := json.Unmarshal(resp.Data, &ctxResp); err != nil {
		return fmt.Errorf("failed to parse context bundle: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(ctxResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(ctxResp.Fragments) == 0 {
		fmt.Println("No context found.")
		return nil
	}

	if ctxResp.Degraded {
		fmt.Println("Note: semantic ranking unavailable, showing text matches only.")
		fmt.Println()
	}

	for i, frag := range ctxResp.Fragments {
		printContextFragment(frag, 0)
		if i < len(ctxResp.Fragments)-1 {
			fmt.Println(strings.Repeat("=", 60))
		}
	}

	fmt.Printf("\nTotal: %d fragments, ~%d tokens", len(ctxResp.Fragments), ctxResp.TotalTokens)
	if ctxResp.Truncated {
		fmt.Print(" (budget reached, results truncated)")
	}
	fmt.Println()

	return nil
}

func printContextFragment(frag ContextFragment, indent int) {
	prefix := strings.Repeat("  ", indent)
	fmt.Printf("%s## %s [%s, ~%d tokens]\n", prefix, frag.Title, frag.Type, frag.Tokens)
	if frag.SourceReference != "" {
		fmt.Printf("%sSource: %s\n", prefix, frag.SourceReference)
	}
	for _, line := range strings.Split(frag.Content, "\n") {
		fmt.Printf("%s%s\n", prefix, line)
	}
	for _, related := range frag.Related {
		fmt.Println()
		printContextFragment(related, indent+1)
	}
}
