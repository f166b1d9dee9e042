package models

import (
	"time"
	"unicode/utf8"
)

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusClosed     IssueStatus = "closed"
)

// Valid reports whether the status is one of the known states.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed:
		return true
	}
	return false
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "low"
	IssuePriorityMedium   IssuePriority = "medium"
	IssuePriorityHigh     IssuePriority = "high"
	IssuePriorityCritical IssuePriority = "critical"
)

// Valid reports whether the priority is one of the known levels.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityCritical:
		return true
	}
	return false
}

// IssueSeverity represents the impact of an issue.
type IssueSeverity string

const (
	IssueSeverityMinor    IssueSeverity = "minor"
	IssueSeverityMajor    IssueSeverity = "major"
	IssueSeverityCritical IssueSeverity = "critical"
)

// Valid reports whether the severity is one of the known levels.
func (s IssueSeverity) Valid() bool {
	switch s {
	case IssueSeverityMinor, IssueSeverityMajor, IssueSeverityCritical:
		return true
	}
	return false
}

// Issue represents a tracked issue. UserName and UserEmail are
// denormalized from the owning user via LEFT JOIN; they are null on the
// wire when the owner has been deleted.
type Issue struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      IssueStatus   `json:"status"`
	Priority    IssuePriority `json:"priority"`
	Severity    IssueSeverity `json:"severity"`
	UserID      *int64        `json:"user_id"`
	UserName    *string       `json:"user_name"`
	UserEmail   *string       `json:"user_email"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IssueStats holds per-status issue counts plus the grand total.
// The four buckets always sum to Total.
type IssueStats struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
}

// Title length bounds enforced on create and update.
const (
	TitleMinLen = 3
	TitleMaxLen = 255

	DescriptionMinLen = 10
	DescriptionMaxLen = 5000
)

// ValidTitle reports whether the title is within bounds. Lengths are
// counted in runes so every surface judges multi-byte text the same way.
func ValidTitle(title string) bool {
	n := utf8.RuneCountInString(title)
	return n >= TitleMinLen && n <= TitleMaxLen
}

// ValidDescription reports whether the description is within bounds,
// counted in runes like ValidTitle.
func ValidDescription(description string) bool {
	n := utf8.RuneCountInString(description)
	return n >= DescriptionMinLen && n <= DescriptionMaxLen
}
