// Package apierror renders the uniform JSON error envelope shared by the
// middleware stack and the task handlers.
package apierror

import (
	"encoding/json"
	"net/http"
)

type Code string

const (
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeInvalidUser     Code = "INVALID_USER"
	CodeInvalidOwner    Code = "INVALID_OWNER"
	CodeInvalidJSON     Code = "INVALID_JSON"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Detail is the body of the "error" member.
type Detail struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type Envelope struct {
	Error Detail `json:"error"`
}

// Write sends status with an envelope built from code, message and details.
// A nil details map is encoded as JSON null.
func Write(w http.ResponseWriter, status int, code Code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: Detail{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func Unauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tasks"`)
	Write(w, http.StatusUnauthorized, CodeUnauthenticated, message, nil)
}

func NotFound(w http.ResponseWriter, message string) {
	Write(w, http.StatusNotFound, CodeNotFound, message, map[string]any{})
}

func Internal(w http.ResponseWriter) {
	Write(w, http.StatusInternalServerError, CodeInternal, "unexpected error", nil)
}
