package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/trackrhq/trackr/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// issueColumns is the joined projection used by every issue read path.
const issueColumns = `i.id, i.title, i.description, i.status, i.priority, i.severity,
	i.user_id, u.name AS user_name, u.email AS user_email, i.created_at, i.updated_at`

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Issues ---

// CreateIssue inserts a new issue, assigning id and timestamps and
// defaulting status/priority/severity when unset. The denormalized
// user fields are populated from the owning user.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.Status == "" {
		issue.Status = models.IssueStatusOpen
	}
	if issue.Priority == "" {
		issue.Priority = models.IssuePriorityMedium
	}
	if issue.Severity == "" {
		issue.Severity = models.IssueSeverityMajor
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (title, description, status, priority, severity, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.Title, issue.Description, string(issue.Status), string(issue.Priority), string(issue.Severity),
		nullableID(issue.UserID), issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create issue id: %w", err)
	}
	issue.ID = id

	// Re-read through the join so the caller sees the same projection
	// every read path returns.
	created, err := s.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	*issue = *created
	return nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+`
		FROM issues i
		LEFT JOIN users u ON i.user_id = u.id
		WHERE i.id = ?`, id,
	)
	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

// ListIssues returns one page of issues matching the filter plus the
// total match count. Both queries are rendered from the same compiled
// clause list, so the count always agrees with the unpaginated result
// set for the same filter.
func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueFilter, page PageRequest) ([]*models.Issue, int, error) {
	where, args := whereSQL(filter.clauses())

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issues i"+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	query := `SELECT ` + issueColumns + `
		FROM issues i
		LEFT JOIN users u ON i.user_id = u.id` +
		where +
		` ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), page.Limit, page.Offset())

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, total, rows.Err()
}

// CountIssues returns the number of issues matching the filter.
func (s *SQLiteStore) CountIssues(ctx context.Context, filter IssueFilter) (int, error) {
	where, args := whereSQL(filter.clauses())

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issues i"+where, args...,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return total, nil
}

// IssueStats aggregates per-status counts and the grand total in one
// pass over the table.
func (s *SQLiteStore) IssueStats(ctx context.Context) (*models.IssueStats, error) {
	stats := &models.IssueStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'in-progress' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'resolved' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END)
		FROM issues`,
	).Scan(&stats.Total,
		nullCount{&stats.Open}, nullCount{&stats.InProgress},
		nullCount{&stats.Resolved}, nullCount{&stats.Closed})
	if err != nil {
		return nil, fmt.Errorf("issue stats: %w", err)
	}
	return stats, nil
}

// UpdateIssue applies a partial update. Only non-nil patch fields are
// written; updated_at is always refreshed. Owner and creation time are
// never touched.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, id int64, patch IssuePatch) error {
	if patch.IsEmpty() {
		return fmt.Errorf("update issue %d: empty patch", id)
	}

	var sets []clause
	if patch.Title != nil {
		sets = append(sets, clause{expr: "title = ?", args: []any{*patch.Title}})
	}
	if patch.Description != nil {
		sets = append(sets, clause{expr: "description = ?", args: []any{*patch.Description}})
	}
	if patch.Status != nil {
		sets = append(sets, clause{expr: "status = ?", args: []any{string(*patch.Status)}})
	}
	if patch.Priority != nil {
		sets = append(sets, clause{expr: "priority = ?", args: []any{string(*patch.Priority)}})
	}
	if patch.Severity != nil {
		sets = append(sets, clause{expr: "severity = ?", args: []any{string(*patch.Severity)}})
	}
	sets = append(sets, clause{expr: "updated_at = ?", args: []any{time.Now().UTC()}})

	query := "UPDATE issues SET "
	var args []any
	for i, c := range sets {
		if i > 0 {
			query += ", "
		}
		query += c.expr
		args = append(args, c.args...)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user id: %w", err)
	}
	u.ID = id
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user. Issues owned by the user survive with a
// null owner (ON DELETE SET NULL).
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var status, priority, severity string
	var userID sql.NullInt64
	var userName, userEmail sql.NullString

	err := row.Scan(&issue.ID, &issue.Title, &issue.Description,
		&status, &priority, &severity,
		&userID, &userName, &userEmail,
		&issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return nil, err
	}

	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	issue.Severity = models.IssueSeverity(severity)
	if userID.Valid {
		issue.UserID = &userID.Int64
	}
	if userName.Valid {
		issue.UserName = &userName.String
	}
	if userEmail.Valid {
		issue.UserEmail = &userEmail.String
	}
	return issue, nil
}

// nullCount scans a SUM() result, which is NULL over an empty table.
type nullCount struct {
	dest *int
}

func (n nullCount) Scan(src any) error {
	if src == nil {
		*n.dest = 0
		return nil
	}
	switch v := src.(type) {
	case int64:
		*n.dest = int(v)
	case float64:
		*n.dest = int(v)
	default:
		return fmt.Errorf("unexpected count type %T", src)
	}
	return nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
