// Package client is a Go client for the trackr REST API. It mirrors
// the browser client's service layer: typed calls for every issue and
// auth endpoint, an explicit Session owning the bearer token, and a
// ListController reproducing the issue listing page's behavior.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"

	"github.com/trackrhq/trackr/internal/models"
)

const defaultTimeout = 15 * time.Second

// Session owns the bearer token for one authenticated principal. It is
// passed explicitly to the client rather than living in a global store;
// initialize it from persisted state and Clear it on logout.
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession creates a session, optionally seeded with a stored token.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token returns the current bearer token, empty when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear drops the token. Subsequent authenticated calls fail with 401.
func (s *Session) Clear() {
	s.set("")
}

// Config configures the API client.
type Config struct {
	BaseURL string `validate:"required,url"`
	Timeout time.Duration
}

func (c Config) validate() error {
	return validator.New().Struct(c)
}

// Client calls the trackr REST API.
type Client struct {
	http    *resty.Client
	session *Session
}

// New creates a client. The session may be freshly created or restored
// from persisted state.
func New(cfg Config, session *Session) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, session: session}, nil
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *Session {
	return c.session
}

// APIError is a non-2xx response carrying the server's message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// apiError decodes the {message} envelope, falling back to the HTTP
// status text.
func apiError(resp *resty.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	msg := resp.Status()
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		msg = body.Message
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token := c.session.Token(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// --- Auth ---

type authResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

// Register creates an account and stores the issued token in the session.
func (c *Client) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	result := &authResult{}
	resp, err := c.request(ctx).
		SetBody(map[string]string{"name": name, "email": email, "password": password}).
		SetResult(result).
		Post("/api/auth/register")
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	c.session.set(result.Token)
	return result.User, nil
}

// Login authenticates and stores the issued token in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	result := &authResult{}
	resp, err := c.request(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(result).
		Post("/api/auth/login")
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	c.session.set(result.Token)
	return result.User, nil
}

// Logout clears the session token.
func (c *Client) Logout() {
	c.session.Clear()
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var result struct {
		User *models.User `json:"user"`
	}
	resp, err := c.request(ctx).SetResult(&result).Get("/api/auth/me")
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return result.User, nil
}

// --- Issues ---

// IssueFilters selects issues for ListIssues. Zero values are omitted
// from the query string.
type IssueFilters struct {
	Page     int
	Limit    int
	Status   string
	Priority string
	Severity string
	Search   string
}

// Pagination is the server's paging metadata.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// IssueList is one page of issues plus paging metadata.
type IssueList struct {
	Issues     []models.Issue `json:"issues"`
	Pagination Pagination     `json:"pagination"`
}

// ListIssues fetches one page of issues matching the filters.
func (c *Client) ListIssues(ctx context.Context, filters IssueFilters) (*IssueList, error) {
	req := c.request(ctx)
	if filters.Page > 0 {
		req.SetQueryParam("page", strconv.Itoa(filters.Page))
	}
	if filters.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(filters.Limit))
	}
	if filters.Status != "" {
		req.SetQueryParam("status", filters.Status)
	}
	if filters.Priority != "" {
		req.SetQueryParam("priority", filters.Priority)
	}
	if filters.Severity != "" {
		req.SetQueryParam("severity", filters.Severity)
	}
	if filters.Search != "" {
		req.SetQueryParam("search", filters.Search)
	}

	result := &IssueList{}
	resp, err := req.SetResult(result).Get("/api/issues")
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return result, nil
}

// Stats fetches the per-status issue counts.
func (c *Client) Stats(ctx context.Context) (*models.IssueStats, error) {
	var result struct {
		Stats *models.IssueStats `json:"stats"`
	}
	resp, err := c.request(ctx).SetResult(&result).Get("/api/issues/status")
	if err != nil {
		return nil, fmt.Errorf("issue stats: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return result.Stats, nil
}

// GetIssue fetches a single issue by id.
func (c *Client) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	var result struct {
		Issue *models.Issue `json:"issue"`
	}
	resp, err := c.request(ctx).SetResult(&result).
		Get(fmt.Sprintf("/api/issues/%d", id))
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return result.Issue, nil
}

// CreateIssueInput is the create request body. Empty priority/severity
// take the server defaults.
type CreateIssueInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// CreateIssue creates an issue owned by the authenticated user.
func (c *Client) CreateIssue(ctx context.Context, input CreateIssueInput) (*models.Issue, error) {
	var result struct {
		Issue *models.Issue `json:"issue"`
	}
	resp, err := c.request(ctx).SetBody(input).SetResult(&result).
		Post("/api/issues")
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return result.Issue, nil
}

// UpdateIssueInput is a partial update; nil fields are not sent.
type UpdateIssueInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Severity    *string `json:"severity,omitempty"`
}

// UpdateIssue applies a partial update to an issue.
func (c *Client) UpdateIssue(ctx context.Context, id int64, input UpdateIssueInput) (*models.Issue, error) {
	var result struct {
		Issue *models.Issue `json:"issue"`
	}
	resp, err := c.request(ctx).SetBody(input).SetResult(&result).
		Put(fmt.Sprintf("/api/issues/%d", id))
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return result.Issue, nil
}

// DeleteIssue removes an issue.
func (c *Client) DeleteIssue(ctx context.Context, id int64) error {
	resp, err := c.request(ctx).Delete(fmt.Sprintf("/api/issues/%d", id))
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}
