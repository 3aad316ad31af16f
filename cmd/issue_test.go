package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ait/internal/models"
	"github.com/joescharf/ait/internal/tracker"
)

// resetIssueFlags clears the flag variables shared by the issue subcommands.
func resetIssueFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		issueDesc, issueClass, issueStatus, issueAgent = "", "", "", ""
		issueComment, issueResolution = "", string(models.IssueStatusClosed)
		issueClasses = nil
		issueSkip, issueTake = 0, 0
		issueJSON = false
	}
	reset()
	t.Cleanup(reset)
}

func captureOut(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	ui.Out = &out
	return &out
}

func TestIssueAddRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()

	issueClass = "bug"
	issueDesc = "500 on submit"
	issueAgent = "planner"
	require.NoError(t, issueAddRun(ctx, "Login broken"))

	tr, err := getTracker(ctx)
	require.NoError(t, err)
	issues := tr.ListIssues(tracker.ListFilter{})
	require.Len(t, issues, 1)
	assert.Equal(t, "Login broken", issues[0].Title)
	assert.Equal(t, "500 on submit", issues[0].Description)
	assert.Equal(t, models.ClassificationBug, issues[0].Classification)
	assert.Equal(t, "planner", issues[0].History[0].Agent)
}

func TestIssueAddRun_SuggestsClassification(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()

	require.NoError(t, issueAddRun(ctx, "Refactor the config loader"))

	tr, err := getTracker(ctx)
	require.NoError(t, err)
	issues := tr.ListIssues(tracker.ListFilter{})
	require.Len(t, issues, 1)
	assert.Equal(t, models.ClassificationImprovement, issues[0].Classification)
	assert.Equal(t, "cli", issues[0].History[0].Agent, "defaults to agent.name")
}

func TestIssueAddRun_InvalidClassification(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	issueClass = "chore"
	err := issueAddRun(context.Background(), "Something")
	require.Error(t, err)

	tr, err := getTracker(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tr.Len())
}

func TestIssueAddRun_DryRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	dryRun = true
	t.Cleanup(func() { dryRun = false })

	issueClass = "feature"
	require.NoError(t, issueAddRun(context.Background(), "Dark mode"))

	tr, err := getTracker(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tr.Len())
}

func TestIssueListRun_JSON(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	tr, err := getTracker(ctx)
	require.NoError(t, err)
	_, err = tr.CreateIssue(ctx, "A", "", models.ClassificationBug, "p")
	require.NoError(t, err)
	_, err = tr.CreateIssue(ctx, "B", "", models.ClassificationFeature, "p")
	require.NoError(t, err)

	out := captureOut(t)
	issueJSON = true
	issueClass = "feature"
	require.NoError(t, issueListRun(ctx))

	var listed []models.Issue
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "B", listed[0].Title)
}

func TestIssueListRun_Table(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()

	out := captureOut(t)
	require.NoError(t, issueListRun(ctx))
	assert.Contains(t, out.String(), "No issues found.")

	tr, err := getTracker(ctx)
	require.NoError(t, err)
	_, err = tr.CreateIssue(ctx, "Visible title", "", models.ClassificationBug, "p")
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, issueListRun(ctx))
	assert.Contains(t, out.String(), "Visible title")
}

func TestIssueListRun_InvalidFilters(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	issueStatus = "open"
	assert.Error(t, issueListRun(context.Background()))

	issueStatus = ""
	issueClass = "chore"
	assert.Error(t, issueListRun(context.Background()))
}

func TestIssueWorkflow(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	tr, err := getTracker(ctx)
	require.NoError(t, err)

	created, err := tr.CreateIssue(ctx, "Crash on save", "", models.ClassificationBug, "planner")
	require.NoError(t, err)

	// peek does not claim
	out := captureOut(t)
	require.NoError(t, issuePeekRun(ctx))
	assert.Contains(t, out.String(), created.ID)
	got, err := tr.GetIssue(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusCreated, got.Status)

	// next claims
	issueAgent = "coder"
	require.NoError(t, issueNextRun(ctx))
	got, err = tr.GetIssue(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, got.Status)
	assert.Equal(t, "coder", got.LastHistory().Agent)

	// nothing else to claim
	out.Reset()
	require.NoError(t, issueNextRun(ctx))
	assert.Contains(t, out.String(), "No issues available with status 'created'.")

	// return with comment, by id prefix
	issueComment = "needs repro steps"
	require.NoError(t, issueReturnRun(ctx, created.ID[:20]))
	got, err = tr.GetIssue(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusCreated, got.Status)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "needs repro steps", got.Comments[0].Text)

	// claim again and complete
	require.NoError(t, issueNextRun(ctx))
	issueComment = "fixed nil map"
	require.NoError(t, issueCompleteRun(ctx, created.ID))

	// review
	issueAgent = "reviewer"
	require.NoError(t, issueReviewRun(ctx))
	got, err = tr.GetIssue(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInReview, got.Status)

	// reject
	issueResolution = "rejected"
	issueComment = "not reproducible"
	require.NoError(t, issueCloseRun(ctx, created.ID))
	got, err = tr.GetIssue(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusRejected, got.Status)

	// terminal
	issueComment = "again"
	err = issueReturnRun(ctx, created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrAlreadyClosed)
}

func TestIssueTransitions_Validation(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	tr, err := getTracker(ctx)
	require.NoError(t, err)
	created, err := tr.CreateIssue(ctx, "A", "", models.ClassificationBug, "p")
	require.NoError(t, err)

	err = issueCompleteRun(ctx, created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--comment is required")

	issueComment = "done"
	err = issueCompleteRun(ctx, "ZZZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	issueResolution = "completed"
	err = issueCloseRun(ctx, created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)

	issueResolution = "bogus"
	assert.Error(t, issueCloseRun(ctx, created.ID))
}

func TestIssuePeekRun_ClassificationOrder(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	tr, err := getTracker(ctx)
	require.NoError(t, err)
	feature, err := tr.CreateIssue(ctx, "Feature", "", models.ClassificationFeature, "p")
	require.NoError(t, err)
	bug, err := tr.CreateIssue(ctx, "Bug", "", models.ClassificationBug, "p")
	require.NoError(t, err)

	out := captureOut(t)
	issueJSON = true
	require.NoError(t, issuePeekRun(ctx))
	var got models.Issue
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, bug.ID, got.ID, "bugs first by default")

	out.Reset()
	issueClasses = []string{"feature", "bug"}
	require.NoError(t, issuePeekRun(ctx))
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, feature.ID, got.ID)

	issueClasses = []string{"chore"}
	assert.Error(t, issuePeekRun(ctx))
}

func TestIssueReviewRun_None(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	out := captureOut(t)
	issueJSON = true
	require.NoError(t, issueReviewRun(context.Background()))
	assert.Equal(t, "null\n", out.String())
}

func TestIssueShowRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	tr, err := getTracker(ctx)
	require.NoError(t, err)
	created, err := tr.CreateIssue(ctx, "Shown", "details here", models.ClassificationFeature, "p")
	require.NoError(t, err)

	out := captureOut(t)
	require.NoError(t, issueShowRun(ctx, created.ID))
	assert.Contains(t, out.String(), "Shown")
	assert.Contains(t, out.String(), "details here")

	err = issueShowRun(ctx, "nope")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}
