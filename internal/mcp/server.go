package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/trackrhq/trackr/internal/models"
	"github.com/trackrhq/trackr/internal/store"
)

const defaultListLimit = 10

// Server wraps the trackr data layer and exposes it as MCP tools.
type Server struct {
	store store.Store
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("trackr", "1.0.0", server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())
	srv.AddTool(s.issueStatsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type issueOut struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Severity    string  `json:"severity"`
	UserName    *string `json:"user_name"`
	UserEmail   *string `json:"user_email"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toIssueOut(issue *models.Issue) issueOut {
	return issueOut{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      string(issue.Status),
		Priority:    string(issue.Priority),
		Severity:    string(issue.Severity),
		UserName:    issue.UserName,
		UserEmail:   issue.UserEmail,
		CreatedAt:   issue.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   issue.UpdatedAt.Format(time.RFC3339),
	}
}

// trackr_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trackr_list_issues",
		mcp.WithDescription("List issues, optionally filtered by status, priority, severity, and/or a search term matched against title and description. Results are paginated, newest first. Returns a JSON object with issues and pagination info."),
		mcp.WithString("status", mcp.Description("Status filter: open, in-progress, resolved, closed")),
		mcp.WithString("priority", mcp.Description("Priority filter: low, medium, high, critical")),
		mcp.WithString("severity", mcp.Description("Severity filter: minor, major, critical")),
		mcp.WithString("search", mcp.Description("Search term matched against title and description")),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1 (default: 1)")),
		mcp.WithNumber("limit", mcp.Description("Issues per page (default: 10)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueFilter{
		Status:   models.IssueStatus(request.GetString("status", "")),
		Priority: models.IssuePriority(request.GetString("priority", "")),
		Severity: models.IssueSeverity(request.GetString("severity", "")),
		Search:   request.GetString("search", ""),
	}
	page := store.PageRequest{
		Page:  request.GetInt("page", 1),
		Limit: request.GetInt("limit", defaultListLimit),
	}

	issues, total, err := s.store.ListIssues(ctx, filter, page)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = toIssueOut(issue)
	}

	result := map[string]any{
		"issues": out,
		"pagination": map[string]any{
			"page":       page.Page,
			"limit":      page.Limit,
			"total":      total,
			"totalPages": store.TotalPages(total, page.Limit),
		},
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issues: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// trackr_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trackr_get_issue",
		mcp.WithDescription("Get a single issue by its numeric ID. Returns the issue as JSON, including reporter name and email when known."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	issue, err := s.store.GetIssue(ctx, int64(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("issue not found: %d", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get issue: %v", err)), nil
	}

	data, err := json.Marshal(toIssueOut(issue))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// trackr_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trackr_create_issue",
		mcp.WithDescription("Create a new issue. Title must be 3-255 characters and description 10-5000 characters. Returns the created issue as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Issue description")),
		mcp.WithString("priority", mcp.Description("Issue priority: low, medium, high, critical (default: medium)")),
		mcp.WithString("severity", mcp.Description("Issue severity: minor, major, critical (default: major)")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}
	if !models.ValidTitle(title) {
		return mcp.NewToolResultError(fmt.Sprintf("title must be between %d and %d characters", models.TitleMinLen, models.TitleMaxLen)), nil
	}
	if !models.ValidDescription(description) {
		return mcp.NewToolResultError(fmt.Sprintf("description must be between %d and %d characters", models.DescriptionMinLen, models.DescriptionMaxLen)), nil
	}

	priority := models.IssuePriority(request.GetString("priority", ""))
	if priority != "" && !priority.Valid() {
		return mcp.NewToolResultError("Please select a valid priority"), nil
	}
	severity := models.IssueSeverity(request.GetString("severity", ""))
	if severity != "" && !severity.Valid() {
		return mcp.NewToolResultError("Please select a valid severity"), nil
	}

	issue := &models.Issue{
		Title:       title,
		Description: description,
		Priority:    priority,
		Severity:    severity,
	}

	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}

	data, err := json.Marshal(toIssueOut(issue))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// trackr_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trackr_update_issue",
		mcp.WithDescription("Update an existing issue. Provide the issue ID and at least one field to change. Returns the updated issue as JSON."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status: open, in-progress, resolved, closed")),
		mcp.WithString("priority", mcp.Description("New priority: low, medium, high, critical")),
		mcp.WithString("severity", mcp.Description("New severity: minor, major, critical")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	var patch store.IssuePatch
	if title := request.GetString("title", ""); title != "" {
		if !models.ValidTitle(title) {
			return mcp.NewToolResultError(fmt.Sprintf("title must be between %d and %d characters", models.TitleMinLen, models.TitleMaxLen)), nil
		}
		patch.Title = &title
	}
	if description := request.GetString("description", ""); description != "" {
		if !models.ValidDescription(description) {
			return mcp.NewToolResultError(fmt.Sprintf("description must be between %d and %d characters", models.DescriptionMinLen, models.DescriptionMaxLen)), nil
		}
		patch.Description = &description
	}
	if status := request.GetString("status", ""); status != "" {
		v := models.IssueStatus(status)
		if !v.Valid() {
			return mcp.NewToolResultError("Please select a valid status"), nil
		}
		patch.Status = &v
	}
	if priority := request.GetString("priority", ""); priority != "" {
		v := models.IssuePriority(priority)
		if !v.Valid() {
			return mcp.NewToolResultError("Please select a valid priority"), nil
		}
		patch.Priority = &v
	}
	if severity := request.GetString("severity", ""); severity != "" {
		v := models.IssueSeverity(severity)
		if !v.Valid() {
			return mcp.NewToolResultError("Please select a valid severity"), nil
		}
		patch.Severity = &v
	}

	if patch.IsEmpty() {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: title, description, status, priority, severity"), nil
	}

	if err := s.store.UpdateIssue(ctx, int64(id), patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("issue not found: %d", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}

	issue, err := s.store.GetIssue(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get issue: %v", err)), nil
	}

	data, err := json.Marshal(toIssueOut(issue))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// trackr_delete_issue
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trackr_delete_issue",
		mcp.WithDescription("Delete an issue by its numeric ID."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	if err := s.store.DeleteIssue(ctx, int64(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("issue not found: %d", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete issue: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(`{"deleted":%d}`, id)), nil
}

// trackr_issue_stats
func (s *Server) issueStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trackr_issue_stats",
		mcp.WithDescription("Get issue counts by status: total, open, in_progress, resolved, closed."),
	)
	return tool, s.handleIssueStats
}

func (s *Server) handleIssueStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.IssueStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
