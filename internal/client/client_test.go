package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackrhq/trackr/internal/api"
	"github.com/trackrhq/trackr/internal/auth"
	"github.com/trackrhq/trackr/internal/models"
	"github.com/trackrhq/trackr/internal/store"
)

// newTestClient spins up a real API server over a temp SQLite store and
// returns a client logged in as a fresh user.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	tokens := auth.NewTokens("test-secret", time.Hour)
	srv := httptest.NewServer(api.NewServer(s, tokens).Router())
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL}, NewSession(""))
	require.NoError(t, err)

	_, err = c.Register(context.Background(), "Ada", "ada@example.com", "password123")
	require.NoError(t, err)
	return c
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(Config{}, NewSession(""))
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "not a url"}, NewSession(""))
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost:8080"}, NewSession(""))
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestRegister_StoresToken(t *testing.T) {
	c := newTestClient(t)
	assert.NotEmpty(t, c.Session().Token())
}

func TestLogin(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	c.Logout()
	assert.Empty(t, c.Session().Token())

	t.Run("success restores the session", func(t *testing.T) {
		user, err := c.Login(ctx, "ada@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "Ada", user.Name)
		assert.NotEmpty(t, c.Session().Token())
	})

	t.Run("bad credentials surface the server message", func(t *testing.T) {
		_, err := c.Login(ctx, "ada@example.com", "wrongpassword")
		require.Error(t, err)

		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, 401, apiErr.StatusCode)
		assert.Equal(t, "Invalid credentials", apiErr.Message)
	})
}

func TestMe(t *testing.T) {
	c := newTestClient(t)

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	c.Logout()
	_, err = c.Me(context.Background())
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestIssueRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreateIssue(ctx, CreateIssueInput{
		Title:       "Login page crashes",
		Description: "Clicking login twice crashes the page",
		Priority:    "high",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, created.Status)
	require.NotNil(t, created.UserName)
	assert.Equal(t, "Ada", *created.UserName)

	got, err := c.GetIssue(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)

	status := "resolved"
	updated, err := c.UpdateIssue(ctx, created.ID, UpdateIssueInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, updated.Status)
	assert.Equal(t, created.Title, updated.Title)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Resolved)

	require.NoError(t, c.DeleteIssue(ctx, created.ID))

	_, err = c.GetIssue(ctx, created.ID)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "Issue not found", apiErr.Message)
}

func TestListIssues_Filters(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateIssue(ctx, CreateIssueInput{
		Title:       "Database timeout",
		Description: "queries hang under load",
		Priority:    "critical",
	})
	require.NoError(t, err)
	_, err = c.CreateIssue(ctx, CreateIssueInput{
		Title:       "Typo in footer",
		Description: "copyright year is wrong",
	})
	require.NoError(t, err)

	t.Run("all", func(t *testing.T) {
		list, err := c.ListIssues(ctx, IssueFilters{})
		require.NoError(t, err)
		assert.Len(t, list.Issues, 2)
		assert.Equal(t, 2, list.Pagination.Total)
	})

	t.Run("search", func(t *testing.T) {
		list, err := c.ListIssues(ctx, IssueFilters{Search: "database"})
		require.NoError(t, err)
		require.Len(t, list.Issues, 1)
		assert.Equal(t, "Database timeout", list.Issues[0].Title)
	})

	t.Run("priority", func(t *testing.T) {
		list, err := c.ListIssues(ctx, IssueFilters{Priority: "critical"})
		require.NoError(t, err)
		assert.Equal(t, 1, list.Pagination.Total)
	})

	t.Run("pagination", func(t *testing.T) {
		list, err := c.ListIssues(ctx, IssueFilters{Page: 2, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, list.Issues, 1)
		assert.Equal(t, 2, list.Pagination.TotalPages)
	})
}
