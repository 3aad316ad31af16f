package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ait/internal/models"
	"github.com/joescharf/ait/internal/output"
	"github.com/joescharf/ait/internal/tracker"
)

var (
	issueDesc       string
	issueClass      string
	issueClasses    []string
	issueStatus     string
	issueAgent      string
	issueComment    string
	issueResolution string
	issueSkip       int
	issueTake       int
	issueJSON       bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Create issues and move them through the agent workflow.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a new issue",
	Long: `Add a new issue in status created.

Without --class, a classification is suggested from the title and
description (Anthropic when configured, otherwise keywords).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context(), strings.Join(args, " "))
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

var issuePeekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Show the next issue that would be handed out, without claiming it",
	Long: `Show the next created issue without changing it.

--class may be repeated; classifications are tried in the order given.
The default order is bug, improvement, feature.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issuePeekRun(cmd.Context())
	},
}

var issueNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Claim the next created issue and set it to in_progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueNextRun(cmd.Context())
	},
}

var issueReturnCmd = &cobra.Command{
	Use:   "return <issue-id>",
	Short: "Return an issue to created status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueReturnRun(cmd.Context(), args[0])
	},
}

var issueCompleteCmd = &cobra.Command{
	Use:   "complete <issue-id>",
	Short: "Mark an issue as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCompleteRun(cmd.Context(), args[0])
	},
}

var issueReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Claim the oldest completed issue and set it to in_review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueReviewRun(cmd.Context())
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <issue-id>",
	Short: "Close or reject an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCloseRun(cmd.Context(), args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issueClass, "class", "", "Classification: bug, improvement, feature")
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status")
	issueListCmd.Flags().StringVar(&issueClass, "class", "", "Filter by classification")
	issueListCmd.Flags().IntVar(&issueSkip, "skip", 0, "Skip the first N matches")
	issueListCmd.Flags().IntVar(&issueTake, "take", 0, "Return at most N matches (0 = all)")
	issuePeekCmd.Flags().StringSliceVar(&issueClasses, "class", nil, "Classification to look for (repeatable, in priority order)")
	issueNextCmd.Flags().StringVar(&issueClass, "class", "", "Only claim issues of this classification")
	issueReturnCmd.Flags().StringVar(&issueComment, "comment", "", "Comment explaining why (required)")
	issueCompleteCmd.Flags().StringVar(&issueComment, "comment", "", "Summary of the work done (required)")
	issueCloseCmd.Flags().StringVar(&issueResolution, "resolution", string(models.IssueStatusClosed), "Resolution: closed or rejected")
	issueCloseCmd.Flags().StringVar(&issueComment, "comment", "", "Comment explaining the resolution (required)")
	for _, c := range []*cobra.Command{issueReturnCmd, issueCompleteCmd, issueCloseCmd} {
		_ = c.MarkFlagRequired("comment")
	}

	for _, c := range []*cobra.Command{issueAddCmd, issueNextCmd, issueReturnCmd, issueCompleteCmd, issueReviewCmd, issueCloseCmd} {
		c.Flags().StringVar(&issueAgent, "agent", "", "Agent name recorded in history (default agent.name)")
	}
	for _, c := range []*cobra.Command{issueAddCmd, issueListCmd, issueShowCmd, issuePeekCmd, issueNextCmd, issueReturnCmd, issueCompleteCmd, issueReviewCmd, issueCloseCmd} {
		c.Flags().BoolVar(&issueJSON, "json", false, "Output as JSON")
	}

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issuePeekCmd)
	issueCmd.AddCommand(issueNextCmd)
	issueCmd.AddCommand(issueReturnCmd)
	issueCmd.AddCommand(issueCompleteCmd)
	issueCmd.AddCommand(issueReviewCmd)
	issueCmd.AddCommand(issueCloseCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun(ctx context.Context, title string) error {
	ctx = orBackground(ctx)
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}

	var class models.Classification
	if issueClass != "" {
		c, err := models.ParseClassification(issueClass)
		if err != nil {
			return err
		}
		class = c
	} else {
		c, err := getSuggester().Suggest(ctx, title, issueDesc)
		if err != nil {
			return fmt.Errorf("suggest classification: %w", err)
		}
		class = c
		ui.VerboseLog("Suggested classification: %s", class)
	}

	if dryRun {
		ui.DryRunMsg("Would add issue: %s [%s]", title, class)
		return nil
	}

	t, err := getTracker(ctx)
	if err != nil {
		return err
	}
	issue, err := t.CreateIssue(ctx, title, issueDesc, class, agentName(issueAgent))
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	if issueJSON {
		return printJSON(issue)
	}
	ui.Success("Created issue %s: %s [%s]", output.Cyan(issue.ID), issue.Title, output.ClassificationColor(string(issue.Classification)))
	return nil
}

func issueListRun(ctx context.Context) error {
	ctx = orBackground(ctx)
	filter := tracker.ListFilter{Skip: issueSkip, Take: issueTake}
	if issueStatus != "" {
		st, err := models.ParseIssueStatus(issueStatus)
		if err != nil {
			return err
		}
		filter.Status = st
	}
	if issueClass != "" {
		c, err := models.ParseClassification(issueClass)
		if err != nil {
			return err
		}
		filter.Classification = c
	}

	t, err := getTracker(ctx)
	if err != nil {
		return err
	}
	list := t.ListIssues(filter)

	if issueJSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		ui.Info("No issues found.")
		return nil
	}
	return ui.IssueTable(list)
}

func issueShowRun(ctx context.Context, id string) error {
	t, err := getTracker(orBackground(ctx))
	if err != nil {
		return err
	}
	issue, err := t.GetIssue(id)
	if err != nil {
		return err
	}
	return printIssue(issue)
}

func issuePeekRun(ctx context.Context) error {
	classes, err := parseClassifications(issueClasses)
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		classes = models.Classifications
	}
	t, err := getTracker(orBackground(ctx))
	if err != nil {
		return err
	}
	issue := t.PeekNextIssue(classes)
	if issue == nil {
		return noneAvailable(models.IssueStatusCreated)
	}
	return printIssue(issue)
}

func issueNextRun(ctx context.Context) error {
	ctx = orBackground(ctx)
	var class models.Classification
	if issueClass != "" {
		c, err := models.ParseClassification(issueClass)
		if err != nil {
			return err
		}
		class = c
	}

	t, err := getTracker(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would claim the next created issue")
		return nil
	}
	issue, err := t.SelectNextToWork(ctx, agentName(issueAgent), class)
	if err != nil {
		return err
	}
	if issue == nil {
		return noneAvailable(models.IssueStatusCreated)
	}
	if !issueJSON {
		ui.Success("Claimed issue %s", output.Cyan(issue.ID))
	}
	return printIssue(issue)
}

func issueReturnRun(ctx context.Context, id string) error {
	return issueTransitionRun(ctx, id, "Returned", func(ctx context.Context, t *tracker.Tracker, agent string) (*models.Issue, error) {
		return t.ReturnIssue(ctx, id, issueComment, agent)
	})
}

func issueCompleteRun(ctx context.Context, id string) error {
	return issueTransitionRun(ctx, id, "Completed", func(ctx context.Context, t *tracker.Tracker, agent string) (*models.Issue, error) {
		return t.CompleteIssue(ctx, id, issueComment, agent)
	})
}

func issueCloseRun(ctx context.Context, id string) error {
	resolution, err := models.ParseIssueStatus(issueResolution)
	if err != nil {
		return err
	}
	verb := "Closed"
	if resolution == models.IssueStatusRejected {
		verb = "Rejected"
	}
	return issueTransitionRun(ctx, id, verb, func(ctx context.Context, t *tracker.Tracker, agent string) (*models.Issue, error) {
		return t.CloseIssue(ctx, id, resolution, issueComment, agent)
	})
}

// issueTransitionRun applies a commented transition to one issue.
func issueTransitionRun(ctx context.Context, id, verb string, apply func(context.Context, *tracker.Tracker, string) (*models.Issue, error)) error {
	ctx = orBackground(ctx)
	if strings.TrimSpace(issueComment) == "" {
		return fmt.Errorf("--comment is required")
	}

	t, err := getTracker(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		issue, err := t.GetIssue(id)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would mark issue %s as %s: %s", issue.ID, strings.ToLower(verb), issue.Title)
		return nil
	}

	issue, err := apply(ctx, t, agentName(issueAgent))
	if err != nil {
		return err
	}
	if issueJSON {
		return printJSON(issue)
	}
	ui.Success("%s issue %s: %s (%s)", verb, output.Cyan(issue.ID), issue.Title, output.StatusColor(string(issue.Status)))
	return nil
}

func issueReviewRun(ctx context.Context) error {
	ctx = orBackground(ctx)
	t, err := getTracker(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would claim the oldest completed issue for review")
		return nil
	}
	issue, err := t.SelectNextToReview(ctx, agentName(issueAgent))
	if err != nil {
		return err
	}
	if issue == nil {
		return noneAvailable(models.IssueStatusCompleted)
	}
	if !issueJSON {
		ui.Success("Reviewing issue %s", output.Cyan(issue.ID))
	}
	return printIssue(issue)
}

// noneAvailable reports an empty selection. It is not an error.
func noneAvailable(status models.IssueStatus) error {
	if issueJSON {
		return printJSON(nil)
	}
	ui.Info("No issues available with status '%s'.", status)
	return nil
}

func parseClassifications(raw []string) ([]models.Classification, error) {
	out := make([]models.Classification, 0, len(raw))
	for _, r := range raw {
		c, err := models.ParseClassification(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func printIssue(issue *models.Issue) error {
	if issueJSON {
		return printJSON(issue)
	}
	ui.IssueDetail(issue)
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, string(data))
	return nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
