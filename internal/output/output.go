package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/ait/internal/models"
)

// UI provides colored output and respects verbose/dry-run modes.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	magenta       = color.New(color.FgHiMagenta).SprintFunc()
	faint         = color.New(color.Faint).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// StatusColor returns the string colored by issue status.
func StatusColor(status string) string {
	switch models.IssueStatus(strings.ToLower(status)) {
	case models.IssueStatusCreated:
		return green(status)
	case models.IssueStatusInProgress:
		return yellow(status)
	case models.IssueStatusCompleted:
		return cyan(status)
	case models.IssueStatusInReview:
		return magenta(status)
	case models.IssueStatusClosed:
		return faint(status)
	case models.IssueStatusRejected:
		return red(status)
	default:
		return status
	}
}

// ClassificationColor returns the string colored by classification.
func ClassificationColor(c string) string {
	switch models.Classification(strings.ToLower(c)) {
	case models.ClassificationBug:
		return red(c)
	case models.ClassificationImprovement:
		return yellow(c)
	case models.ClassificationFeature:
		return green(c)
	default:
		return c
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// IssueTable renders issues one per row.
func (u *UI) IssueTable(issues []*models.Issue) error {
	table := u.Table([]string{"ID", "Status", "Class", "Title", "Modified"})
	for _, i := range issues {
		if err := table.Append([]string{
			i.ID,
			StatusColor(string(i.Status)),
			ClassificationColor(string(i.Classification)),
			i.Title,
			i.ModifiedAt.Local().Format(time.DateTime),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// IssueDetail prints every field of an issue, followed by its history and comments.
func (u *UI) IssueDetail(i *models.Issue) {
	fmt.Fprintf(u.Out, "%s  %s\n", Cyan(i.ID), i.Title)
	fmt.Fprintf(u.Out, "  Status:         %s\n", StatusColor(string(i.Status)))
	fmt.Fprintf(u.Out, "  Classification: %s\n", ClassificationColor(string(i.Classification)))
	fmt.Fprintf(u.Out, "  Created:        %s\n", i.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(u.Out, "  Modified:       %s\n", i.ModifiedAt.Local().Format(time.DateTime))
	if i.Description != "" {
		fmt.Fprintf(u.Out, "\n%s\n", i.Description)
	}

	if len(i.History) > 0 {
		fmt.Fprintf(u.Out, "\nHistory:\n")
		for _, h := range i.History {
			fmt.Fprintf(u.Out, "  %s  %-12s %s\n", faint(h.Timestamp.Local().Format(time.DateTime)), h.Agent, h.Action)
		}
	}
	if len(i.Comments) > 0 {
		fmt.Fprintf(u.Out, "\nComments:\n")
		for _, c := range i.Comments {
			fmt.Fprintf(u.Out, "  %s  %-12s %s\n", faint(c.Timestamp.Local().Format(time.DateTime)), c.Agent, c.Text)
		}
	}
}
