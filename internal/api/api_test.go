package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackrhq/trackr/internal/auth"
	"github.com/trackrhq/trackr/internal/models"
	"github.com/trackrhq/trackr/internal/store"
)

// testAPI bundles a running API server with its backing store.
type testAPI struct {
	srv   *httptest.Server
	store store.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	tokens := auth.NewTokens("test-secret", time.Hour)
	srv := httptest.NewServer(NewServer(s, tokens).Router())
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, store: s}
}

// do issues a JSON request and decodes the response body into out (when
// out is non-nil). Returns the status code.
func (a *testAPI) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reqBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// registerUser registers a user and returns its auth token.
func (a *testAPI) registerUser(t *testing.T, name, email string) string {
	t.Helper()

	var resp authResponse
	status := a.do(t, "POST", "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "password123",
	}, &resp)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// createIssue creates an issue via the API and returns it.
func (a *testAPI) createIssue(t *testing.T, token, title, description string) *models.Issue {
	t.Helper()

	var resp issueResponse
	status := a.do(t, "POST", "/api/issues", token, map[string]string{
		"title":       title,
		"description": description,
	}, &resp)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, resp.Issue)
	return resp.Issue
}

type errorResponse struct {
	Message string `json:"message"`
}

// --- Auth ---

func TestRegister(t *testing.T) {
	api := newTestAPI(t)

	t.Run("success", func(t *testing.T) {
		var resp authResponse
		status := api.do(t, "POST", "/api/auth/register", "", map[string]string{
			"name":     "Ada",
			"email":    "ada@example.com",
			"password": "password123",
		}, &resp)

		assert.Equal(t, http.StatusCreated, status)
		assert.True(t, resp.Success)
		assert.Equal(t, "User registered successfully", resp.Message)
		assert.NotEmpty(t, resp.Token)
		require.NotNil(t, resp.User)
		assert.Equal(t, "Ada", resp.User.Name)
	})

	t.Run("duplicate email", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/auth/register", "", map[string]string{
			"name":     "Other",
			"email":    "ada@example.com",
			"password": "password123",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Email already registered", resp.Message)
	})

	t.Run("invalid email", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/auth/register", "", map[string]string{
			"name":     "Bob",
			"email":    "not-an-email",
			"password": "password123",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid email address", resp.Message)
	})

	t.Run("short password", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/auth/register", "", map[string]string{
			"name":     "Bob",
			"email":    "bob@example.com",
			"password": "short",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Password must be at least 6 characters", resp.Message)
	})

	t.Run("password is never serialized", func(t *testing.T) {
		var raw map[string]any
		status := api.do(t, "POST", "/api/auth/register", "", map[string]string{
			"name":     "Cam",
			"email":    "cam@example.com",
			"password": "password123",
		}, &raw)

		require.Equal(t, http.StatusCreated, status)
		user := raw["user"].(map[string]any)
		_, hasHash := user["password_hash"]
		assert.False(t, hasHash)
	})
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "Ada", "ada@example.com")

	t.Run("success", func(t *testing.T) {
		var resp authResponse
		status := api.do(t, "POST", "/api/auth/login", "", map[string]string{
			"email":    "ada@example.com",
			"password": "password123",
		}, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/auth/login", "", map[string]string{
			"email":    "ada@example.com",
			"password": "wrongpassword",
		}, &resp)

		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", resp.Message)
	})

	t.Run("unknown email gets the same message", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/auth/login", "", map[string]string{
			"email":    "nobody@example.com",
			"password": "password123",
		}, &resp)

		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", resp.Message)
	})
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ada", "ada@example.com")

	t.Run("with token", func(t *testing.T) {
		var resp struct {
			Success bool         `json:"success"`
			User    *models.User `json:"user"`
		}
		status := api.do(t, "GET", "/api/auth/me", token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		require.NotNil(t, resp.User)
		assert.Equal(t, "ada@example.com", resp.User.Email)
	})

	t.Run("without token", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "GET", "/api/auth/me", "", nil, &resp)

		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Authentication required", resp.Message)
	})

	t.Run("garbage token", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "GET", "/api/auth/me", "garbage", nil, &resp)

		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid or expired token", resp.Message)
	})
}

func TestIssuesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/issues"},
		{"GET", "/api/issues/1"},
		{"GET", "/api/issues/status"},
		{"POST", "/api/issues"},
		{"PUT", "/api/issues/1"},
		{"DELETE", "/api/issues/1"},
	} {
		status := api.do(t, tc.method, tc.path, "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, status, "%s %s", tc.method, tc.path)
	}
}

// --- Issues ---

func TestCreateIssue(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ada", "ada@example.com")

	t.Run("success", func(t *testing.T) {
		var resp issueResponse
		status := api.do(t, "POST", "/api/issues", token, map[string]string{
			"title":       "Login page crashes",
			"description": "Clicking login twice crashes the page",
			"priority":    "high",
		}, &resp)

		assert.Equal(t, http.StatusCreated, status)
		assert.True(t, resp.Success)
		assert.Equal(t, "Issue created successfully", resp.Message)
		require.NotNil(t, resp.Issue)
		assert.Equal(t, models.IssueStatusOpen, resp.Issue.Status, "new issues start open")
		assert.Equal(t, models.IssuePriorityHigh, resp.Issue.Priority)
		require.NotNil(t, resp.Issue.UserName, "reporter resolved from the token")
		assert.Equal(t, "Ada", *resp.Issue.UserName)
	})

	t.Run("title too short", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/issues", token, map[string]string{
			"title":       "ab",
			"description": "a perfectly fine description",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Title must be at least 3 characters", resp.Message)
	})

	t.Run("three character title is accepted", func(t *testing.T) {
		status := api.do(t, "POST", "/api/issues", token, map[string]string{
			"title":       "abc",
			"description": "a perfectly fine description",
		}, nil)

		assert.Equal(t, http.StatusCreated, status)
	})

	t.Run("missing description", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/issues", token, map[string]string{
			"title": "valid title",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Title and description are required", resp.Message)
	})

	t.Run("invalid priority", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "POST", "/api/issues", token, map[string]string{
			"title":       "valid title",
			"description": "a perfectly fine description",
			"priority":    "urgent",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Please select a valid priority", resp.Message)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req, err := http.NewRequest("POST", api.srv.URL+"/api/issues", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateIssue_DeletedUserToken(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ghost", "ghost@example.com")

	user, err := api.store.GetUserByEmail(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	require.NoError(t, api.store.DeleteUser(context.Background(), user.ID))

	// The token is still cryptographically valid, but its user is gone.
	var resp errorResponse
	status := api.do(t, "POST", "/api/issues", token, map[string]string{
		"title":       "Orphan token issue",
		"description": "created with a token whose user was deleted",
	}, &resp)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired token", resp.Message)
}

func TestListIssues(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ada", "ada@example.com")

	t.Run("empty list is an array", func(t *testing.T) {
		var raw map[string]any
		status := api.do(t, "GET", "/api/issues", token, nil, &raw)

		assert.Equal(t, http.StatusOK, status)
		issues, ok := raw["issues"].([]any)
		require.True(t, ok, "issues must serialize as [], got %v", raw["issues"])
		assert.Empty(t, issues)
	})

	for i := 1; i <= 15; i++ {
		api.createIssue(t, token, fmt.Sprintf("issue number %d", i), "a plain description")
	}

	t.Run("defaults to page 1 limit 10", func(t *testing.T) {
		var resp issueListResponse
		status := api.do(t, "GET", "/api/issues", token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, resp.Issues, 10)
		assert.Equal(t, pagination{Page: 1, Limit: 10, Total: 15, TotalPages: 2}, resp.Pagination)
		assert.Equal(t, "issue number 15", resp.Issues[0].Title, "newest first")
	})

	t.Run("explicit page", func(t *testing.T) {
		var resp issueListResponse
		status := api.do(t, "GET", "/api/issues?page=2&limit=10", token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, resp.Issues, 5)
		assert.Equal(t, 2, resp.Pagination.Page)
	})

	t.Run("unparsable page falls back to default", func(t *testing.T) {
		var resp issueListResponse
		status := api.do(t, "GET", "/api/issues?page=abc", token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 1, resp.Pagination.Page)
	})

	t.Run("search", func(t *testing.T) {
		api.createIssue(t, token, "Database timeout", "queries hang under load")

		var resp issueListResponse
		status := api.do(t, "GET", "/api/issues?search=database", token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 1, resp.Pagination.Total)
		require.Len(t, resp.Issues, 1)
		assert.Equal(t, "Database timeout", resp.Issues[0].Title)
	})

	t.Run("status filter", func(t *testing.T) {
		var resp issueListResponse
		status := api.do(t, "GET", "/api/issues?status=closed", token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 0, resp.Pagination.Total)
	})
}

func TestGetIssue(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ada", "ada@example.com")
	issue := api.createIssue(t, token, "lookup target", "a plain description")

	t.Run("found", func(t *testing.T) {
		var resp issueResponse
		status := api.do(t, "GET", fmt.Sprintf("/api/issues/%d", issue.ID), token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		require.NotNil(t, resp.Issue)
		assert.Equal(t, "lookup target", resp.Issue.Title)
	})

	t.Run("missing id", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "GET", "/api/issues/99999", token, nil, &resp)

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Issue not found", resp.Message)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "GET", "/api/issues/abc", token, nil, &resp)

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Issue not found", resp.Message)
	})
}

func TestUpdateIssue(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ada", "ada@example.com")

	t.Run("full lifecycle", func(t *testing.T) {
		issue := api.createIssue(t, token, "lifecycle issue", "starts open, ends resolved")
		require.Equal(t, models.IssueStatusOpen, issue.Status)

		var resp issueResponse
		status := api.do(t, "PUT", fmt.Sprintf("/api/issues/%d", issue.ID), token, map[string]string{
			"status": "resolved",
		}, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Issue updated successfully", resp.Message)
		require.NotNil(t, resp.Issue)
		assert.Equal(t, models.IssueStatusResolved, resp.Issue.Status)
		assert.Equal(t, "lifecycle issue", resp.Issue.Title, "partial update keeps other fields")
		assert.True(t, resp.Issue.UpdatedAt.After(resp.Issue.CreatedAt))

		// The resolved issue shows up under the matching filter.
		var list issueListResponse
		status = api.do(t, "GET", "/api/issues?status=resolved", token, nil, &list)
		assert.Equal(t, http.StatusOK, status)
		require.Len(t, list.Issues, 1)
		assert.Equal(t, issue.ID, list.Issues[0].ID)
	})

	t.Run("empty body", func(t *testing.T) {
		issue := api.createIssue(t, token, "untouched issue", "nobody changes anything")

		var resp errorResponse
		status := api.do(t, "PUT", fmt.Sprintf("/api/issues/%d", issue.ID), token, map[string]string{}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "No fields to update", resp.Message)
	})

	t.Run("explicit empty title fails validation", func(t *testing.T) {
		issue := api.createIssue(t, token, "guarded issue", "title cannot be blanked")

		var resp errorResponse
		status := api.do(t, "PUT", fmt.Sprintf("/api/issues/%d", issue.ID), token, map[string]string{
			"title": "",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Title must be at least 3 characters", resp.Message)
	})

	t.Run("invalid status", func(t *testing.T) {
		issue := api.createIssue(t, token, "status guard", "status must be a known value")

		var resp errorResponse
		status := api.do(t, "PUT", fmt.Sprintf("/api/issues/%d", issue.ID), token, map[string]string{
			"status": "done",
		}, &resp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Please select a valid status", resp.Message)
	})

	t.Run("not found", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "PUT", "/api/issues/99999", token, map[string]string{
			"status": "closed",
		}, &resp)

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Issue not found", resp.Message)
	})
}

func TestDeleteIssue(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ada", "ada@example.com")
	issue := api.createIssue(t, token, "doomed issue", "will be deleted shortly")

	t.Run("success", func(t *testing.T) {
		var resp struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		status := api.do(t, "DELETE", fmt.Sprintf("/api/issues/%d", issue.ID), token, nil, &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.True(t, resp.Success)
		assert.Equal(t, "Issue deleted successfully", resp.Message)

		status = api.do(t, "GET", fmt.Sprintf("/api/issues/%d", issue.ID), token, nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("already gone", func(t *testing.T) {
		var resp errorResponse
		status := api.do(t, "DELETE", fmt.Sprintf("/api/issues/%d", issue.ID), token, nil, &resp)

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Issue not found", resp.Message)
	})
}

func TestIssueStats(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerUser(t, "Ada", "ada@example.com")

	issue := api.createIssue(t, token, "stat one", "counted as open")
	api.createIssue(t, token, "stat two", "also counted as open")

	var resp issueResponse
	status := api.do(t, "PUT", fmt.Sprintf("/api/issues/%d", issue.ID), token, map[string]string{
		"status": "closed",
	}, &resp)
	require.Equal(t, http.StatusOK, status)

	var stats struct {
		Success bool               `json:"success"`
		Stats   *models.IssueStats `json:"stats"`
	}
	status = api.do(t, "GET", "/api/issues/status", token, nil, &stats)

	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, stats.Stats)
	assert.Equal(t, 2, stats.Stats.Total)
	assert.Equal(t, 1, stats.Stats.Open)
	assert.Equal(t, 1, stats.Stats.Closed)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest("OPTIONS", api.srv.URL+"/api/issues", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}
