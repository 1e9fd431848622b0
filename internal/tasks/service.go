package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
)

const (
	MaxTitleLen       = 500
	MaxDescriptionLen = 5000
)

// CreateInput is the create request body. It deliberately has no owner
// field: the owner is always the verified caller.
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// Service runs task operations on behalf of the caller recorded in the
// context by auth.WithCallerID.
type Service struct {
	repo   Repository
	logger *slog.Logger
	tracer trace.Tracer
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("tasks"),
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (_ Task, err error) {
	ctx, span, caller, err := s.start(ctx, "create")
	defer func() { s.finish(span, "create", err) }()
	if err != nil {
		return Task{}, err
	}

	title, fe := normalizeTitle(in.Title)
	var fields []FieldError
	if fe != nil {
		fields = append(fields, *fe)
	}
	if fe := checkDescription(in.Description); fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		return Task{}, &ValidationError{Fields: fields}
	}

	exists, err := s.repo.UserExists(ctx, caller)
	if err != nil {
		return Task{}, fmt.Errorf("lookup user: %w", err)
	}
	if !exists {
		return Task{}, ErrInvalidUser
	}

	t := Task{Title: title, UserID: caller}
	if in.Description != nil && *in.Description != "" {
		d := *in.Description
		t.Description = &d
	}

	created, err := s.repo.Insert(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.logger.DebugContext(ctx, "task_created", slog.Int64("task_id", created.ID), slog.String("user_id", caller))
	return created, nil
}

// List returns the caller's tasks, newest first. A nil completed lists all.
func (s *Service) List(ctx context.Context, completed *bool) (_ []Task, err error) {
	ctx, span, caller, err := s.start(ctx, "list")
	defer func() { s.finish(span, "list", err) }()
	if err != nil {
		return nil, err
	}
	if completed != nil {
		span.SetAttributes(attribute.Bool("tasks.completed_filter", *completed))
	}
	return s.repo.FindAll(ctx, caller, completed)
}

func (s *Service) Get(ctx context.Context, id int64) (_ Task, err error) {
	ctx, span, caller, err := s.start(ctx, "get")
	defer func() { s.finish(span, "get", err) }()
	if err != nil {
		return Task{}, err
	}
	span.SetAttributes(attribute.Int64("task.id", id))
	return s.repo.FindOne(ctx, id, caller)
}

// Update applies p to the caller's task. updated_at advances on every
// successful call, including one with an empty patch.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (_ Task, err error) {
	ctx, span, caller, err := s.start(ctx, "update")
	defer func() { s.finish(span, "update", err) }()
	if err != nil {
		return Task{}, err
	}
	span.SetAttributes(attribute.Int64("task.id", id))

	var fields []FieldError
	if p.Title != nil {
		title, fe := normalizeTitle(*p.Title)
		if fe != nil {
			fields = append(fields, *fe)
		}
		p.Title = &title
	}
	if fe := checkDescription(p.Description); fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		return Task{}, &ValidationError{Fields: fields}
	}

	updated, err := s.repo.Update(ctx, id, caller, p)
	if err != nil {
		return Task{}, err
	}
	s.logger.DebugContext(ctx, "task_updated", slog.Int64("task_id", id), slog.String("user_id", caller))
	return updated, nil
}

// Delete removes the caller's task. A second call for the same id reports
// ErrNotFound.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	ctx, span, caller, err := s.start(ctx, "delete")
	defer func() { s.finish(span, "delete", err) }()
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("task.id", id))

	if err := s.repo.Delete(ctx, id, caller); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "task_deleted", slog.Int64("task_id", id), slog.String("user_id", caller))
	return nil
}

func (s *Service) start(ctx context.Context, op string) (context.Context, trace.Span, string, error) {
	ctx, span := s.tracer.Start(ctx, "tasks."+op)
	caller, ok := auth.CallerID(ctx)
	if !ok {
		return ctx, span, "", auth.ErrUnauthenticated
	}
	span.SetAttributes(attribute.String("user.id", caller))
	return ctx, span, caller, nil
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := outcomeOf(err)
	operationsTotal.WithLabelValues(op, outcome).Inc()
	if outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func normalizeTitle(raw string) (string, *FieldError) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", &FieldError{Field: "title", Message: "title cannot be empty or whitespace"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", &FieldError{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLen)}
	}
	return title, nil
}

func checkDescription(desc *string) *FieldError {
	if desc != nil && utf8.RuneCountInString(*desc) > MaxDescriptionLen {
		return &FieldError{Field: "description", Message: fmt.Sprintf("description must be at most %d characters", MaxDescriptionLen)}
	}
	return nil
}
