package store

import (
	"context"
	"errors"

	"github.com/trackrhq/trackr/internal/models"
)

// ErrNotFound is returned when a row lookup matches nothing. Callers
// distinguish it from infrastructure failures with errors.Is.
var ErrNotFound = errors.New("not found")

// IssueFilter specifies filters for listing issues. Zero-value fields
// have no filtering effect. Values are not validated against the enum
// sets: an invalid value is bound as-is and matches zero rows.
type IssueFilter struct {
	Status   models.IssueStatus
	Priority models.IssuePriority
	Severity models.IssueSeverity
	Search   string
}

// PageRequest selects one page of a listing. There is deliberately no
// guard against Page <= 0; callers supply positive values or accept
// the store's offset arithmetic as-is.
type PageRequest struct {
	Page  int
	Limit int
}

// Offset returns the row offset for this page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages returns ceil(total/limit) for positive limits.
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// IssuePatch is a partial update: nil fields are left untouched.
// Owner and creation time are not patchable.
type IssuePatch struct {
	Title       *string
	Description *string
	Status      *models.IssueStatus
	Priority    *models.IssuePriority
	Severity    *models.IssueSeverity
}

// IsEmpty reports whether the patch modifies nothing.
func (p IssuePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.Severity == nil
}

// Store defines the persistence interface for trackr.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id int64) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter, page PageRequest) ([]*models.Issue, int, error)
	CountIssues(ctx context.Context, filter IssueFilter) (int, error)
	IssueStats(ctx context.Context) (*models.IssueStats, error)
	UpdateIssue(ctx context.Context, id int64, patch IssuePatch) error
	DeleteIssue(ctx context.Context, id int64) error

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id int64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
