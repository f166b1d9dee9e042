package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type createIssueRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Description string `json:"description" validate:"required,min=10,max=5000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Severity    string `json:"severity" validate:"omitempty,oneof=minor major critical"`
}

// updateIssueRequest is a partial update: absent fields stay nil and are
// not validated or applied. An explicitly supplied value must satisfy
// its own constraint even when empty, hence omitnil rather than
// omitempty.
type updateIssueRequest struct {
	Title       *string `json:"title" validate:"omitnil,min=3,max=255"`
	Description *string `json:"description" validate:"omitnil,min=10,max=5000"`
	Status      *string `json:"status" validate:"omitnil,oneof=open in-progress resolved closed"`
	Priority    *string `json:"priority" validate:"omitnil,oneof=low medium high critical"`
	Severity    *string `json:"severity" validate:"omitnil,oneof=minor major critical"`
}

func (r updateIssueRequest) isEmpty() bool {
	return r.Title == nil && r.Description == nil && r.Status == nil &&
		r.Priority == nil && r.Severity == nil
}

// fieldMessages maps struct field + failing tag to the human-readable
// message the original controller produced for that failure.
var fieldMessages = map[string]string{
	"Name/required":        "Name is required",
	"Name/min":             "Name must be at least 2 characters",
	"Name/max":             "Name is too long",
	"Email/required":       "Email is required",
	"Email/email":          "Invalid email address",
	"Password/required":    "Password is required",
	"Password/min":         "Password must be at least 6 characters",
	"Title/required":       "Title and description are required",
	"Title/min":            "Title must be at least 3 characters",
	"Title/max":            "Title is too long",
	"Description/required": "Title and description are required",
	"Description/min":      "Description must be at least 10 characters",
	"Description/max":      "Description is too long",
	"Status/oneof":         "Please select a valid status",
	"Priority/oneof":       "Please select a valid priority",
	"Severity/oneof":       "Please select a valid severity",
}

// validationMessage converts a validator error into the first failing
// field's message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if msg, ok := fieldMessages[fe.Field()+"/"+fe.Tag()]; ok {
			return msg
		}
		return fmt.Sprintf("Invalid value for %s", fe.Field())
	}
	return "Invalid request"
}
