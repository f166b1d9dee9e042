package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cast"

	"github.com/trackrhq/trackr/internal/models"
	"github.com/trackrhq/trackr/internal/store"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type issueListResponse struct {
	Success    bool            `json:"success"`
	Issues     []*models.Issue `json:"issues"`
	Pagination pagination      `json:"pagination"`
}

type issueResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Issue   *models.Issue `json:"issue"`
}

// issueID resolves the path id, returning false after writing a 404 for
// anything that cannot name an existing row.
func issueID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := cast.ToInt64E(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "Issue not found")
		return 0, false
	}
	return id, true
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.IssueFilter{
		Status:   models.IssueStatus(q.Get("status")),
		Priority: models.IssuePriority(q.Get("priority")),
		Severity: models.IssueSeverity(q.Get("severity")),
		Search:   q.Get("search"),
	}

	// Absent or unparsable values fall back to the defaults. Supplied
	// non-positive values pass through untouched.
	page := store.PageRequest{Page: defaultPage, Limit: defaultLimit}
	if v := q.Get("page"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			page.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			page.Limit = n
		}
	}

	issues, total, err := s.store.ListIssues(r.Context(), filter, page)
	if err != nil {
		serverError(w, "list issues", err)
		return
	}
	if issues == nil {
		issues = []*models.Issue{}
	}

	writeJSON(w, http.StatusOK, issueListResponse{
		Success: true,
		Issues:  issues,
		Pagination: pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      total,
			TotalPages: store.TotalPages(total, page.Limit),
		},
	})
}

func (s *Server) issueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.IssueStats(r.Context())
	if err != nil {
		serverError(w, "issue stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := issueID(w, r)
	if !ok {
		return
	}

	issue, err := s.store.GetIssue(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}
	if err != nil {
		serverError(w, "get issue", err)
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{Success: true, Issue: issue})
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	// The token outlives its user when the account is deleted; resolve
	// the caller so the insert never hits the user_id foreign key.
	userID := callerID(r.Context())
	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		serverError(w, "create issue caller", err)
		return
	}

	issue := &models.Issue{
		Title:       req.Title,
		Description: req.Description,
		Priority:    models.IssuePriority(req.Priority),
		Severity:    models.IssueSeverity(req.Severity),
		UserID:      &userID,
	}
	if err := s.store.CreateIssue(r.Context(), issue); err != nil {
		serverError(w, "create issue", err)
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{
		Success: true,
		Message: "Issue created successfully",
		Issue:   issue,
	})
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := issueID(w, r)
	if !ok {
		return
	}

	var req updateIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.isEmpty() {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	patch := store.IssuePatch{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Status != nil {
		status := models.IssueStatus(*req.Status)
		patch.Status = &status
	}
	if req.Priority != nil {
		priority := models.IssuePriority(*req.Priority)
		patch.Priority = &priority
	}
	if req.Severity != nil {
		severity := models.IssueSeverity(*req.Severity)
		patch.Severity = &severity
	}

	err := s.store.UpdateIssue(r.Context(), id, patch)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}
	if err != nil {
		serverError(w, "update issue", err)
		return
	}

	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		serverError(w, "update issue reload", err)
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{
		Success: true,
		Message: "Issue updated successfully",
		Issue:   issue,
	})
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := issueID(w, r)
	if !ok {
		return
	}

	err := s.store.DeleteIssue(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}
	if err != nil {
		serverError(w, "delete issue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Issue deleted successfully",
	})
}
