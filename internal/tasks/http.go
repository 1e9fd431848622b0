package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/apierror"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
)

const maxBodyBytes = 1 << 20

type taskListResponse struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}

type tokenResponse struct {
	Valid   bool   `json:"valid"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type handler struct {
	svc    *Service
	logger *slog.Logger
}

// RegisterRoutes mounts the task endpoints. The router must already run the
// authentication middleware so that a caller identity is in the context.
func RegisterRoutes(r chi.Router, svc *Service, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	r.Get("/tasks/validate-token", h.validateToken)
	r.Post("/tasks", h.createTask)
	r.Get("/tasks", h.listTasks)
	r.Get("/tasks/{id}", h.getTask)
	r.Put("/tasks/{id}", h.updateTask)
	r.Delete("/tasks/{id}", h.deleteTask)
}

func (h *handler) validateToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerID(r.Context())
	if !ok {
		apierror.Unauthenticated(w, "Invalid token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Valid:   true,
		UserID:  caller,
		Message: "Token is valid and user identity verified",
	})
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	var completed *bool
	if raw := r.URL.Query().Get("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.renderError(w, r, &ValidationError{Fields: []FieldError{
				{Field: "completed", Message: "completed must be true or false"},
			}})
			return
		}
		completed = &v
	}

	list, err := h.svc.List(r.Context(), completed)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if list == nil {
		list = []Task{}
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: list, Total: len(list)})
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var p Patch
	if !h.decode(w, r, &p) {
		return
	}

	t, err := h.svc.Update(r.Context(), id, p)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.renderError(w, r, &ValidationError{Fields: []FieldError{
			{Field: "task_id", Message: "task id must be an integer"},
		}})
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into dst, writing the error response itself when
// the body is unusable.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		h.renderError(w, r, &ValidationError{Fields: []FieldError{
			{Field: typeErr.Field, Message: fmt.Sprintf("expected %s", typeErr.Type)},
		}})
		return false
	}
	apierror.Write(w, http.StatusBadRequest, apierror.CodeInvalidJSON, "request body is not valid JSON", nil)
	return false
}

func (h *handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	caller, _ := auth.CallerID(r.Context())

	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeValidation, "request validation failed",
			map[string]any{"fields": vErr.Fields})
	case errors.Is(err, ErrNotFound):
		apierror.NotFound(w, "Task not found")
	case errors.Is(err, ErrInvalidUser):
		apierror.Write(w, http.StatusBadRequest, apierror.CodeInvalidUser,
			fmt.Sprintf("User with id %s does not exist", caller),
			map[string]any{"field": "user_id", "value": caller})
	case errors.Is(err, ErrInvalidOwner):
		apierror.Write(w, http.StatusBadRequest, apierror.CodeInvalidOwner,
			"Task owner does not exist",
			map[string]any{"field": "user_id", "value": caller})
	case errors.Is(err, auth.ErrUnauthenticated):
		apierror.Unauthenticated(w, "Invalid token")
	default:
		h.logger.ErrorContext(r.Context(), "task_request_failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierror.Internal(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
