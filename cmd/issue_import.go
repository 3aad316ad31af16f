package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ait/internal/classify"
	"github.com/joescharf/ait/internal/models"
	"github.com/joescharf/ait/internal/output"
	"github.com/joescharf/ait/internal/tracker"
)

var (
	importUseLLM bool
	importDryRun bool
)

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a markdown file",
	Long: `Import issues from a markdown file.

Numbered and bulleted list items become issues in status created. Sub-items
such as "1.1 text" keep their parent line as the description. Headings
separate groups.

With --llm, Anthropic extracts titles, descriptions and classifications
instead (requires ANTHROPIC_API_KEY or anthropic.api_key in config).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(cmd.Context(), args[0])
	},
}

func init() {
	issueImportCmd.Flags().BoolVar(&importUseLLM, "llm", false, "Extract issues with the Anthropic API")
	issueImportCmd.Flags().BoolVar(&importDryRun, "preview", false, "Preview extracted issues without creating them")
	issueImportCmd.Flags().StringVar(&issueAgent, "agent", "", "Agent name recorded in history (default agent.name)")
	issueCmd.AddCommand(issueImportCmd)
}

func issueImportRun(ctx context.Context, file string) error {
	ctx = orBackground(ctx)

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	drafts, err := extractDrafts(ctx, content)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	table := ui.Table([]string{"#", "Class", "Title"})
	for i, d := range drafts {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			output.ClassificationColor(d.Classification),
			d.Title,
		})
	}
	_ = table.Render()

	if importDryRun || dryRun {
		ui.DryRunMsg("Would create %d issues", len(drafts))
		return nil
	}

	t, err := getTracker(ctx)
	if err != nil {
		return err
	}
	return createDrafts(ctx, t, drafts, agentName(issueAgent))
}

// extractDrafts parses content locally, or with the LLM when --llm is set.
func extractDrafts(ctx context.Context, content string) ([]classify.Draft, error) {
	if !importUseLLM {
		return classify.ParseMarkdown(content), nil
	}

	client := newLLMClient()
	if client == nil {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config)")
	}
	ui.Info("Extracting issues with LLM...")
	drafts, err := client.ExtractIssues(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extract issues: %w", err)
	}
	return drafts, nil
}

// createDrafts creates one issue per draft. Drafts whose title already
// exists on an open issue are skipped so re-importing a file is harmless.
func createDrafts(ctx context.Context, t *tracker.Tracker, drafts []classify.Draft, agent string) error {
	existing := make(map[string]bool)
	for _, issue := range t.ListIssues(tracker.ListFilter{}) {
		if !issue.Status.IsTerminal() {
			existing[strings.ToLower(issue.Title)] = true
		}
	}

	created, skipped := 0, 0
	for _, d := range drafts {
		key := strings.ToLower(d.Title)
		if existing[key] {
			ui.VerboseLog("Skipping existing issue %q", d.Title)
			skipped++
			continue
		}

		class, err := models.ParseClassification(d.Classification)
		if err != nil {
			class = classify.Keywords(d.Title, d.Description)
		}

		if _, err := t.CreateIssue(ctx, d.Title, d.Description, class, agent); err != nil {
			return fmt.Errorf("create issue %q: %w", d.Title, err)
		}
		existing[key] = true
		created++
	}

	ui.Success("Created %d issues", created)
	if skipped > 0 {
		ui.Warning("Skipped %d issues that already exist", skipped)
	}
	return nil
}
