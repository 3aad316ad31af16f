package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/ait/internal/classify"
	"github.com/joescharf/ait/internal/models"
	"github.com/joescharf/ait/internal/tracker"
)

// noneAvailable is the text result of a selection that found nothing.
const noneAvailable = "No issues available with status '%s'."

// Server exposes the issue tracker as MCP tools.
type Server struct {
	tracker   *tracker.Tracker
	suggester classify.Suggester
	version   string
}

// NewServer creates the MCP server wrapper. A nil suggester falls back to
// keyword classification.
func NewServer(t *tracker.Tracker, suggester classify.Suggester, version string) *Server {
	if suggester == nil {
		suggester = classify.Heuristic{}
	}
	if version == "" {
		version = "dev"
	}
	return &Server{
		tracker:   t,
		suggester: suggester,
		version:   version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("agent-issue-tracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.addIssueTool())
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.peekNextIssueTool())
	srv.AddTool(s.getNextIssueTool())
	srv.AddTool(s.returnIssueTool())
	srv.AddTool(s.completeIssueTool())
	srv.AddTool(s.getNextReviewTool())
	srv.AddTool(s.closeIssueTool())
	srv.AddTool(s.suggestClassificationTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler returns the streamable HTTP transport for mounting on a mux.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.MCPServer())
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

var classificationValues = []string{
	string(models.ClassificationBug),
	string(models.ClassificationImprovement),
	string(models.ClassificationFeature),
}

var statusValues = func() []string {
	out := make([]string, len(models.IssueStatuses))
	for i, st := range models.IssueStatuses {
		out[i] = string(st)
	}
	return out
}()

// add_issue
func (s *Server) addIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("add_issue",
		mcp.WithDescription("Create a new issue in the tracker. Returns the created issue as JSON. When classification is omitted one is suggested from the title and description."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title for the issue")),
		mcp.WithString("description", mcp.Description("Detailed description of the issue")),
		mcp.WithString("classification", mcp.Enum(classificationValues...), mcp.Description("Type of issue: bug, improvement, feature")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name or ID of the agent creating this issue")),
	)
	return tool, s.handleAddIssue
}

func (s *Server) handleAddIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := requireNonEmpty(request, "title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	agent, err := requireNonEmpty(request, "agent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description := request.GetString("description", "")

	var class models.Classification
	if raw := request.GetString("classification", ""); raw != "" {
		class, err = models.ParseClassification(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	} else {
		class, err = s.suggester.Suggest(ctx, title, description)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to suggest classification: %v", err)), nil
		}
	}

	issue, err := s.tracker.CreateIssue(ctx, title, description, class, agent)
	if err != nil {
		return toolError("failed to create issue", err), nil
	}
	return issueResult(issue)
}

// list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_issues",
		mcp.WithDescription("List issues in creation order, optionally filtered by status and/or classification, with skip/take pagination. Returns a JSON array of issues including history and comments."),
		mcp.WithString("status", mcp.Enum(statusValues...), mcp.Description("Status filter: created, in_progress, completed, in_review, closed, rejected")),
		mcp.WithString("classification", mcp.Enum(classificationValues...), mcp.Description("Classification filter: bug, improvement, feature")),
		mcp.WithNumber("skip", mcp.Min(0), mcp.Description("Number of matching issues to skip")),
		mcp.WithNumber("take", mcp.Min(0), mcp.Description("Maximum number of issues to return (0 = all)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := tracker.ListFilter{
		Skip: request.GetInt("skip", 0),
		Take: request.GetInt("take", 0),
	}
	if filter.Skip < 0 || filter.Take < 0 {
		return mcp.NewToolResultError("skip and take must not be negative"), nil
	}

	if raw := request.GetString("status", ""); raw != "" {
		st, err := models.ParseIssueStatus(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Status = st
	}
	if raw := request.GetString("classification", ""); raw != "" {
		c, err := models.ParseClassification(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Classification = c
	}

	return jsonResult(s.tracker.ListIssues(filter), "issues")
}

// get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_issue",
		mcp.WithDescription("Get a single issue by ID (full ULID or unique prefix), including its history and comments."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireNonEmpty(request, "issue_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issue, err := s.tracker.GetIssue(id)
	if err != nil {
		return toolError("failed to get issue", err), nil
	}
	return issueResult(issue)
}

// peek_next_issue
func (s *Server) peekNextIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("peek_next_issue",
		mcp.WithDescription("Look at the next issue that would be handed out, without picking it up. Classifications are checked in the given order and the first one with a waiting issue wins. Defaults to bug, improvement, feature."),
		mcp.WithArray("classifications",
			mcp.WithStringItems(mcp.Enum(classificationValues...)),
			mcp.Description("Classifications in priority order"),
		),
	)
	return tool, s.handlePeekNextIssue
}

func (s *Server) handlePeekNextIssue(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetStringSlice("classifications", classificationValues)
	if len(raw) == 0 {
		raw = classificationValues
	}
	order := make([]models.Classification, 0, len(raw))
	for _, r := range raw {
		c, err := models.ParseClassification(r)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		order = append(order, c)
	}

	issue := s.tracker.PeekNextIssue(order)
	if issue == nil {
		return mcp.NewToolResultText(fmt.Sprintf(noneAvailable, models.IssueStatusCreated)), nil
	}
	return issueResult(issue)
}

// get_next_issue
func (s *Server) getNextIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_next_issue",
		mcp.WithDescription("Pick up the next available issue to work on and set it to in_progress. Returns the issue as JSON, or a message when nothing is available."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name or ID of the agent picking up this issue")),
		mcp.WithString("classification", mcp.Enum(classificationValues...), mcp.Description("Only pick up issues of this classification")),
	)
	return tool, s.handleGetNextIssue
}

func (s *Server) handleGetNextIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, err := requireNonEmpty(request, "agent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var class models.Classification
	if raw := request.GetString("classification", ""); raw != "" {
		class, err = models.ParseClassification(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	issue, err := s.tracker.SelectNextToWork(ctx, agent, class)
	if err != nil {
		return toolError("failed to get next issue", err), nil
	}
	if issue == nil {
		return mcp.NewToolResultText(fmt.Sprintf(noneAvailable, models.IssueStatusCreated)), nil
	}
	return issueResult(issue)
}

// return_issue
func (s *Server) returnIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("return_issue",
		mcp.WithDescription("Return an issue to 'created' status with a comment explaining why."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("ID of the issue to return")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Reason for returning the issue")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name or ID of the agent returning the issue")),
	)
	return tool, s.handleReturnIssue
}

func (s *Server) handleReturnIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, comment, agent, errResult := commentArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	issue, err := s.tracker.ReturnIssue(ctx, id, comment, agent)
	if err != nil {
		return toolError("failed to return issue", err), nil
	}
	return issueResult(issue)
}

// complete_issue
func (s *Server) completeIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("complete_issue",
		mcp.WithDescription("Mark an issue as completed with a comment describing the work, making it available for review."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("ID of the issue to complete")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Summary of the work done")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name or ID of the agent completing the issue")),
	)
	return tool, s.handleCompleteIssue
}

func (s *Server) handleCompleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, comment, agent, errResult := commentArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	issue, err := s.tracker.CompleteIssue(ctx, id, comment, agent)
	if err != nil {
		return toolError("failed to complete issue", err), nil
	}
	return issueResult(issue)
}

// get_next_review
func (s *Server) getNextReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_next_review",
		mcp.WithDescription("Pick up the oldest completed issue for review and set it to in_review. Returns the issue as JSON, or a message when nothing is waiting."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name or ID of the reviewing agent")),
	)
	return tool, s.handleGetNextReview
}

func (s *Server) handleGetNextReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, err := requireNonEmpty(request, "agent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issue, err := s.tracker.SelectNextToReview(ctx, agent)
	if err != nil {
		return toolError("failed to get next review", err), nil
	}
	if issue == nil {
		return mcp.NewToolResultText(fmt.Sprintf(noneAvailable, models.IssueStatusCompleted)), nil
	}
	return issueResult(issue)
}

// close_issue
func (s *Server) closeIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("close_issue",
		mcp.WithDescription("Close an issue as closed or rejected with a final comment. Closed and rejected issues cannot change again."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("ID of the issue to close")),
		mcp.WithString("resolution", mcp.Required(), mcp.Enum(string(models.IssueStatusClosed), string(models.IssueStatusRejected)), mcp.Description("Final resolution status")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Final comment explaining the resolution")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name or ID of the agent closing the issue")),
	)
	return tool, s.handleCloseIssue
}

func (s *Server) handleCloseIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, comment, agent, errResult := commentArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	raw, err := request.RequireString("resolution")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: resolution"), nil
	}
	resolution, err := models.ParseIssueStatus(raw)
	if err != nil || !resolution.IsTerminal() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid resolution %q (must be closed or rejected)", raw)), nil
	}

	issue, err := s.tracker.CloseIssue(ctx, id, resolution, comment, agent)
	if err != nil {
		return toolError("failed to close issue", err), nil
	}
	return issueResult(issue)
}

// suggest_classification
func (s *Server) suggestClassificationTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("suggest_classification",
		mcp.WithDescription("Suggest a classification (bug, improvement, feature) for an issue title and description without creating anything."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Issue description")),
	)
	return tool, s.handleSuggestClassification
}

func (s *Server) handleSuggestClassification(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := requireNonEmpty(request, "title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.suggester.Suggest(ctx, title, request.GetString("description", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to suggest classification: %v", err)), nil
	}
	return jsonResult(map[string]string{"classification": string(c)}, "classification")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// requireNonEmpty returns a required string argument, rejecting blank values.
func requireNonEmpty(request mcp.CallToolRequest, key string) (string, error) {
	v, err := request.RequireString(key)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	return strings.TrimSpace(v), nil
}

// commentArgs extracts the issue_id, comment and agent arguments shared by
// the id-addressed mutations. The comment may be empty but must be present.
func commentArgs(request mcp.CallToolRequest) (id, comment, agent string, errResult *mcp.CallToolResult) {
	var err error
	if id, err = requireNonEmpty(request, "issue_id"); err != nil {
		return "", "", "", mcp.NewToolResultError(err.Error())
	}
	if comment, err = request.RequireString("comment"); err != nil {
		return "", "", "", mcp.NewToolResultError("missing required parameter: comment")
	}
	if agent, err = requireNonEmpty(request, "agent"); err != nil {
		return "", "", "", mcp.NewToolResultError(err.Error())
	}
	return id, comment, agent, nil
}

// toolError reports a tracker error as a tool-level error result.
func toolError(prefix string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, tracker.ErrNotFound),
		errors.Is(err, tracker.ErrAlreadyClosed),
		errors.Is(err, tracker.ErrAmbiguousID),
		errors.Is(err, tracker.ErrInvalidArgument):
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func issueResult(issue *models.Issue) (*mcp.CallToolResult, error) {
	return jsonResult(issue, "issue")
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
