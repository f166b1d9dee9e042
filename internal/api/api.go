package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trackrhq/trackr/internal/auth"
	"github.com/trackrhq/trackr/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	tokens   *auth.Tokens
	validate *validator.Validate
}

// NewServer creates a new API server.
func NewServer(s store.Store, tokens *auth.Tokens) *Server {
	return &Server{
		store:    s,
		tokens:   tokens,
		validate: validator.New(),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.me))

	mux.HandleFunc("GET /api/issues", s.requireAuth(s.listIssues))
	mux.HandleFunc("GET /api/issues/status", s.requireAuth(s.issueStats))
	mux.HandleFunc("GET /api/issues/{id}", s.requireAuth(s.getIssue))
	mux.HandleFunc("POST /api/issues", s.requireAuth(s.createIssue))
	mux.HandleFunc("PUT /api/issues/{id}", s.requireAuth(s.updateIssue))
	mux.HandleFunc("DELETE /api/issues/{id}", s.requireAuth(s.deleteIssue))

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userIDKey carries the authenticated user id in the request context.
type userIDKey struct{}

// requireAuth verifies the bearer token and stores the caller's user id
// in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		userID, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next(w, r.WithContext(ctx))
	}
}

// callerID returns the authenticated user id placed by requireAuth.
func callerID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the {message} error envelope the client surfaces
// verbatim.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// serverError logs the underlying failure and sends a generic 500.
func serverError(w http.ResponseWriter, op string, err error) {
	slog.Error("api request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "Server error")
}
