package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trackrhq/trackr/internal/llm"
	"github.com/trackrhq/trackr/internal/models"
	"github.com/trackrhq/trackr/internal/output"
	"github.com/trackrhq/trackr/internal/store"
)

var (
	issueTitle    string
	issueDesc     string
	issuePriority string
	issueSeverity string
	issueStatus   string
	issueSearch   string
	issuePage     int
	issueLimit    int
	issueApply    bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Create, list, update, and delete issues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long:    "List issues, newest first. Filters combine with AND.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

var issueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show issue counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatsRun()
	},
}

var issueTriageCmd = &cobra.Command{
	Use:   "triage <issue-id>",
	Short: "Suggest priority and severity for an issue using the Anthropic API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueTriageRun(args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description (required)")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: low, medium, high, critical")
	issueAddCmd.Flags().StringVar(&issueSeverity, "severity", "", "Severity: minor, major, critical")
	_ = issueAddCmd.MarkFlagRequired("title")
	_ = issueAddCmd.MarkFlagRequired("desc")

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, in-progress, resolved, closed")
	issueListCmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority")
	issueListCmd.Flags().StringVar(&issueSeverity, "severity", "", "Filter by severity")
	issueListCmd.Flags().StringVar(&issueSearch, "search", "", "Search term matched against title and description")
	issueListCmd.Flags().IntVar(&issuePage, "page", 1, "Page number")
	issueListCmd.Flags().IntVar(&issueLimit, "limit", 10, "Issues per page")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")
	issueUpdateCmd.Flags().StringVar(&issueSeverity, "severity", "", "New severity")

	issueTriageCmd.Flags().BoolVar(&issueApply, "apply", false, "Apply the suggested priority and severity")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	issueCmd.AddCommand(issueStatsCmd)
	issueCmd.AddCommand(issueTriageCmd)
	rootCmd.AddCommand(issueCmd)
}

// parseIssueID converts a CLI argument to an issue ID.
func parseIssueID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid issue id: %s", arg)
	}
	return id, nil
}

func issueAddRun() error {
	if !models.ValidTitle(issueTitle) {
		return fmt.Errorf("title must be between %d and %d characters", models.TitleMinLen, models.TitleMaxLen)
	}
	if !models.ValidDescription(issueDesc) {
		return fmt.Errorf("description must be between %d and %d characters", models.DescriptionMinLen, models.DescriptionMaxLen)
	}

	priority := models.IssuePriority(issuePriority)
	if priority != "" && !priority.Valid() {
		return fmt.Errorf("invalid priority %q (expected low, medium, high, or critical)", issuePriority)
	}
	severity := models.IssueSeverity(issueSeverity)
	if severity != "" && !severity.Valid() {
		return fmt.Errorf("invalid severity %q (expected minor, major, or critical)", issueSeverity)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue := &models.Issue{
		Title:       issueTitle,
		Description: issueDesc,
		Priority:    priority,
		Severity:    severity,
	}

	if err := s.CreateIssue(ctx, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	ui.Success("Created issue %s: %s", output.Cyan(fmt.Sprintf("#%d", issue.ID)), issue.Title)
	return nil
}

func issueListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.IssueFilter{
		Status:   models.IssueStatus(issueStatus),
		Priority: models.IssuePriority(issuePriority),
		Severity: models.IssueSeverity(issueSeverity),
		Search:   issueSearch,
	}
	page := store.PageRequest{Page: issuePage, Limit: issueLimit}

	issues, total, err := s.ListIssues(ctx, filter, page)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Severity", "Reporter", "Created"})
	for _, issue := range issues {
		reporter := ""
		if issue.UserName != nil {
			reporter = *issue.UserName
		}
		_ = table.Append([]string{
			fmt.Sprintf("%d", issue.ID),
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			output.SeverityColor(string(issue.Severity)),
			reporter,
			issue.CreatedAt.Format("2006-01-02"),
		})
	}
	_ = table.Render()

	totalPages := store.TotalPages(total, issueLimit)
	fmt.Fprintf(ui.Out, "Page %d of %d (%d issues)\n", issuePage, totalPages, total)
	return nil
}

func issueShowRun(arg string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := parseIssueID(arg)
	if err != nil {
		return err
	}

	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(fmt.Sprintf("#%d", issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", output.SeverityColor(string(issue.Severity)))
	fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	if issue.UserName != nil {
		email := ""
		if issue.UserEmail != nil {
			email = " <" + *issue.UserEmail + ">"
		}
		fmt.Fprintf(ui.Out, "  Reporter:   %s%s\n", *issue.UserName, email)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))

	return nil
}

func issueUpdateRun(arg string) error {
	id, err := parseIssueID(arg)
	if err != nil {
		return err
	}

	var patch store.IssuePatch
	if issueTitle != "" {
		if !models.ValidTitle(issueTitle) {
			return fmt.Errorf("title must be between %d and %d characters", models.TitleMinLen, models.TitleMaxLen)
		}
		patch.Title = &issueTitle
	}
	if issueDesc != "" {
		if !models.ValidDescription(issueDesc) {
			return fmt.Errorf("description must be between %d and %d characters", models.DescriptionMinLen, models.DescriptionMaxLen)
		}
		patch.Description = &issueDesc
	}
	if issueStatus != "" {
		v := models.IssueStatus(issueStatus)
		if !v.Valid() {
			return fmt.Errorf("invalid status %q (expected open, in-progress, resolved, or closed)", issueStatus)
		}
		patch.Status = &v
	}
	if issuePriority != "" {
		v := models.IssuePriority(issuePriority)
		if !v.Valid() {
			return fmt.Errorf("invalid priority %q (expected low, medium, high, or critical)", issuePriority)
		}
		patch.Priority = &v
	}
	if issueSeverity != "" {
		v := models.IssueSeverity(issueSeverity)
		if !v.Valid() {
			return fmt.Errorf("invalid severity %q (expected minor, major, or critical)", issueSeverity)
		}
		patch.Severity = &v
	}

	if patch.IsEmpty() {
		return fmt.Errorf("no updates specified (use --title, --desc, --status, --priority, or --severity)")
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := s.UpdateIssue(ctx, id, patch); err != nil {
		return err
	}

	ui.Success("Updated issue #%d", id)
	return nil
}

func issueDeleteRun(arg string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := parseIssueID(arg)
	if err != nil {
		return err
	}

	if err := s.DeleteIssue(ctx, id); err != nil {
		return err
	}

	ui.Success("Deleted issue #%d", id)
	return nil
}

func issueStatsRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	stats, err := s.IssueStats(context.Background())
	if err != nil {
		return err
	}

	table := ui.Table([]string{"Status", "Count"})
	_ = table.Append([]string{output.StatusColor("open"), fmt.Sprintf("%d", stats.Open)})
	_ = table.Append([]string{output.StatusColor("in-progress"), fmt.Sprintf("%d", stats.InProgress)})
	_ = table.Append([]string{output.StatusColor("resolved"), fmt.Sprintf("%d", stats.Resolved)})
	_ = table.Append([]string{output.StatusColor("closed"), fmt.Sprintf("%d", stats.Closed)})
	_ = table.Append([]string{"total", fmt.Sprintf("%d", stats.Total)})
	_ = table.Render()
	return nil
}

func issueTriageRun(arg string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := parseIssueID(arg)
	if err != nil {
		return err
	}

	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return err
	}

	apiKey := viper.GetString("anthropic.api_key")
	model := viper.GetString("anthropic.model")
	client := llm.NewClient(apiKey, model)

	ui.Info("Triaging issue #%d with %s...", id, model)
	triage, err := client.TriageIssue(ctx, issue.Title, issue.Description)
	if err != nil {
		return fmt.Errorf("triage: %w", err)
	}

	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(triage.Priority))
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", output.SeverityColor(triage.Severity))
	fmt.Fprintf(ui.Out, "  Rationale:  %s\n", triage.Rationale)

	if !issueApply {
		return nil
	}

	priority := models.IssuePriority(triage.Priority)
	severity := models.IssueSeverity(triage.Severity)
	if !priority.Valid() || !severity.Valid() {
		return fmt.Errorf("model suggested out-of-range values (priority %q, severity %q); not applying", triage.Priority, triage.Severity)
	}
	patch := store.IssuePatch{Priority: &priority, Severity: &severity}
	if err := s.UpdateIssue(ctx, id, patch); err != nil {
		return err
	}

	ui.Success("Applied triage to issue #%d", id)
	return nil
}
