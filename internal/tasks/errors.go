package tasks

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound covers both a missing task and a task owned by someone else.
	ErrNotFound     = errors.New("task not found")
	ErrInvalidOwner = errors.New("task owner does not exist")
	ErrInvalidUser  = errors.New("user does not exist")
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserExists   = errors.New("user id already exists")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when request fields break title or
// description constraints.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
