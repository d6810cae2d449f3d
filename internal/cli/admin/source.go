package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/repository"
	"github.com/tessera-ai/tessera/internal/service"
)

func SourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage indexing sources",
		Long:  "Register, list, enable, disable, and delete indexing sources",
	}

	cmd.AddCommand(SourceAddCmd())
	cmd.AddCommand(SourceListCmd())
	cmd.AddCommand(SourceEnableCmd())
	cmd.AddCommand(SourceDisableCmd())
	cmd.AddCommand(SourceDeleteCmd())

	return cmd
}

func SourceAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new indexing source",
		Long: `Register a new indexing source for an organization.

The locator is adapter-specific:
  code_filesystem  directory root to scan for Go files
  knowledge_s3     s3://bucket/prefix of markdown pages
  session_log      directory of session transcript .jsonl files

Code sources require --project; the project is created if it does not exist.`,
		RunE: runSourceAdd,
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().StringP("name", "n", "", "Source name, unique per organization (required)")
	cmd.Flags().StringP("kind", "k", "", "Source kind: code_filesystem, knowledge_s3, or session_log (required)")
	cmd.Flags().StringP("locator", "l", "", "Adapter-specific locator (required)")
	cmd.Flags().StringP("project", "p", "", "Project ID or name (required for code_filesystem)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("locator")

	return cmd
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgRef, _ := cmd.Flags().GetString("org")
	name, _ := cmd.Flags().GetString("name")
	kind, _ := cmd.Flags().GetString("kind")
	locator, _ := cmd.Flags().GetString("locator")
	projectRef, _ := cmd.Flags().GetString("project")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	orgRepo := repository.NewOrgRepository(pool)
	sourceRepo := repository.NewSourceRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	sourceSvc := service.NewSourceService(sourceRepo, uuidGen)

	orgID, err := resolveOrgID(ctx, orgRepo, orgRef)
	if err != nil {
		return err
	}

	var projectID string
	if projectRef != "" {
		projectID, err = resolveOrCreateProject(ctx, projectRepo, uuidGen, orgID, projectRef)
		if err != nil {
			return err
		}
	}

	src, err := sourceSvc.Create(ctx, service.CreateSourceInput{
		OrgID:     orgID,
		ProjectID: projectID,
		Name:      name,
		Kind:      domain.SourceKind(kind),
		Locator:   locator,
	})
	if err != nil {
		return fmt.Errorf("failed to register source: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(sourceJSON(src), "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Source registered: %s (%s)\n", src.Name, src.ID)
		fmt.Printf("Kind: %s\n", src.Kind)
		fmt.Printf("Locator: %s\n", src.Locator)
		if src.ProjectID != "" {
			fmt.Printf("Project: %s\n", src.ProjectID)
		}
	}

	return nil
}

func SourceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgRef, _ := cmd.Flags().GetString("org")
			outputFormat, _ := cmd.Flags().GetString("output")
			return runSourceList(orgRef, outputFormat)
		},
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("org")

	return cmd
}

func runSourceList(orgRef, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	orgRepo := repository.NewOrgRepository(pool)
	sourceRepo := repository.NewSourceRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	sourceSvc := service.NewSourceService(sourceRepo, uuidGen)

	orgID, err := resolveOrgID(ctx, orgRepo, orgRef)
	if err != nil {
		return err
	}

	sources, err := sourceSvc.List(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(sources))
		for i, src := range sources {
			data[i] = sourceJSON(src)
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(sources) == 0 {
			fmt.Printf("No sources registered for organization %s\n", orgID)
			return nil
		}
		fmt.Printf("Sources for organization %s:\n", orgID)
		for _, src := range sources {
			status := "enabled"
			if !src.Enabled {
				status = "disabled"
			}
			fmt.Printf("  %s: %s [%s, %s] %s\n", src.ID, src.Name, src.Kind, status, src.Locator)
		}
	}

	return nil
}

func SourceEnableCmd() *cobra.Command {
	return sourceToggleCmd("enable", true)
}

func SourceDisableCmd() *cobra.Command {
	return sourceToggleCmd("disable", false)
}

func sourceToggleCmd(verb string, enabled bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: verb + " a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgRef, _ := cmd.Flags().GetString("org")
			return runSourceToggle(orgRef, args[0], enabled)
		},
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.MarkFlagRequired("org")

	return cmd
}

func runSourceToggle(orgRef, sourceID string, enabled bool) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	orgRepo := repository.NewOrgRepository(pool)
	sourceRepo := repository.NewSourceRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	sourceSvc := service.NewSourceService(sourceRepo, uuidGen)

	orgID, err := resolveOrgID(ctx, orgRepo, orgRef)
	if err != nil {
		return err
	}

	if err := sourceSvc.SetEnabled(ctx, orgID, sourceID, enabled); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Printf("Source %s %s\n", sourceID, state)
	return nil
}

func SourceDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a source registration",
		Long:  "Delete a source registration and its change-detection state. Indexed fragments are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgRef, _ := cmd.Flags().GetString("org")
			return runSourceDelete(orgRef, args[0])
		},
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.MarkFlagRequired("org")

	return cmd
}

func runSourceDelete(orgRef, sourceID string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	orgRepo := repository.NewOrgRepository(pool)
	sourceRepo := repository.NewSourceRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	sourceSvc := service.NewSourceService(sourceRepo, uuidGen)

	orgID, err := resolveOrgID(ctx, orgRepo, orgRef)
	if err != nil {
		return err
	}

	if err := sourceSvc.Delete(ctx, orgID, sourceID); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	fmt.Printf("Source %s deleted\n", sourceID)
	return nil
}

func resolveOrCreateProject(ctx context.Context, projectRepo *repository.ProjectRepository, uuidGen service.UUIDGenerator, orgID, projectRef string) (string, error) {
	if _, err := uuid.Parse(projectRef); err == nil {
		project, err := projectRepo.GetByID(ctx, projectRef)
		if err != nil {
			return "", fmt.Errorf("project not found: %s", projectRef)
		}
		return project.ID, nil
	}

	project, err := projectRepo.GetByName(ctx, orgID, projectRef)
	if err == nil {
		return project.ID, nil
	}
	if err != domain.ErrProjectNotFound {
		return "", err
	}

	project = domain.NewProject(uuidGen.NewString(), orgID, projectRef, time.Now().UTC())
	if err := projectRepo.Create(ctx, project); err != nil {
		return "", fmt.Errorf("failed to create project: %w", err)
	}
	fmt.Printf("Project created: %s (%s)\n", project.Name, project.ID)
	return project.ID, nil
}

func sourceJSON(src *domain.Source) map[string]interface{} {
	return map[string]interface{}{
		"id":         src.ID,
		"org_id":     src.OrgID,
		"project_id": src.ProjectID,
		"name":       src.Name,
		"kind":       src.Kind,
		"locator":    src.Locator,
		"enabled":    src.Enabled,
		"created_at": src.CreatedAt,
		"updated_at": src.UpdatedAt,
	}
}
