package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/apierror"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/middleware"
)

const testSecret = "test-secret-test-secret-test-secret"

func newTestServer(t *testing.T, users ...string) (*chi.Mux, *InMemoryRepo) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{}))

	repo := NewInMemoryRepo()
	for _, id := range users {
		if _, err := repo.CreateUser(context.Background(), User{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}

	verifier, err := auth.NewVerifier(testSecret, auth.Options{Logger: logger})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(middleware.AuthConfig{Verifier: verifier}))
		RegisterRoutes(r, NewService(repo, logger), logger)
	})
	return r, repo
}

func tokenFor(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func do(t *testing.T, r http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, user))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) Task {
	t.Helper()
	var got Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse JSON: %v (body=%s)", err, rec.Body.String())
	}
	return got
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierror.Detail {
	t.Helper()
	var env apierror.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error JSON: %v (body=%s)", err, rec.Body.String())
	}
	return env.Error
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d, body=%s", want, rec.Code, rec.Body.String())
	}
}

func TestPostTasks_Success(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	rec := do(t, r, http.MethodPost, "/tasks", "u1", `{"title":"Buy milk"}`)
	expectStatus(t, rec, http.StatusCreated)

	got := decodeTask(t, rec)
	if got.ID == 0 {
		t.Errorf("expected non-zero ID")
	}
	if got.Title != "Buy milk" {
		t.Errorf("expected Title=Buy milk, got %q", got.Title)
	}
	if got.IsCompleted {
		t.Errorf("new tasks should default to is_completed=false")
	}
	if got.UserID != "u1" {
		t.Errorf("expected user_id=u1, got %q", got.UserID)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("expected created_at == updated_at, got %v / %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestPostTasks_IgnoresClientOwner(t *testing.T) {
	r, repo := newTestServer(t, "u1", "u2")

	rec := do(t, r, http.MethodPost, "/tasks", "u1", `{"title":"sneaky","user_id":"u2"}`)
	expectStatus(t, rec, http.StatusCreated)

	if got := decodeTask(t, rec); got.UserID != "u1" {
		t.Fatalf("expected owner u1, got %q", got.UserID)
	}
	list, err := repo.FindAll(context.Background(), "u2", nil)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("u2 must not own any tasks, got %d", len(list))
	}
}

func TestPostTasks_BlankTitle(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	rec := do(t, r, http.MethodPost, "/tasks", "u1", `{"title":"   "}`)
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	if e := decodeError(t, rec); e.Code != apierror.CodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %q", e.Code)
	}
}

func TestPostTasks_InvalidJSON(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	rec := do(t, r, http.MethodPost, "/tasks", "u1", `{"title":`) // truncated/invalid JSON
	expectStatus(t, rec, http.StatusBadRequest)

	if e := decodeError(t, rec); e.Code != apierror.CodeInvalidJSON {
		t.Errorf("expected INVALID_JSON, got %q", e.Code)
	}
}

func TestPostTasks_UnknownUser(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	rec := do(t, r, http.MethodPost, "/tasks", "ghost", `{"title":"hello"}`)
	expectStatus(t, rec, http.StatusBadRequest)

	e := decodeError(t, rec)
	if e.Code != apierror.CodeInvalidUser {
		t.Errorf("expected INVALID_USER, got %q", e.Code)
	}
	if e.Details["field"] != "user_id" || e.Details["value"] != "ghost" {
		t.Errorf("unexpected details %v", e.Details)
	}
}

func TestTasks_RequireBearerToken(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/tasks"},
		{http.MethodGet, "/tasks"},
		{http.MethodGet, "/tasks/1"},
		{http.MethodPut, "/tasks/1"},
		{http.MethodDelete, "/tasks/1"},
		{http.MethodGet, "/tasks/validate-token"},
	} {
		rec := do(t, r, tc.method, tc.path, "", "")
		expectStatus(t, rec, http.StatusUnauthorized)
		if e := decodeError(t, rec); e.Code != apierror.CodeUnauthenticated {
			t.Errorf("%s %s: expected UNAUTHENTICATED, got %q", tc.method, tc.path, e.Code)
		}
	}
}

func TestGetTasks_HappyPath(t *testing.T) {
	r, repo := newTestServer(t, "u1")

	seed, err := repo.Insert(context.Background(), Task{Title: "seeded task", UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error seeding repo: %v", err)
	}

	rec := do(t, r, http.MethodGet, "/tasks", "u1", "")
	expectStatus(t, rec, http.StatusOK)

	var list taskListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if list.Total != 1 || len(list.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %+v", list)
	}
	if list.Tasks[0].ID != seed.ID || list.Tasks[0].Title != "seeded task" {
		t.Errorf("unexpected task %+v", list.Tasks[0])
	}
}

func TestGetTasks_BadCompletedFilter(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	rec := do(t, r, http.MethodGet, "/tasks?completed=maybe", "u1", "")
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestGetTask_NonNumericID(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	rec := do(t, r, http.MethodGet, "/tasks/abc", "u1", "")
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestPutTask_TypeMismatch(t *testing.T) {
	r, repo := newTestServer(t, "u1")
	seed, err := repo.Insert(context.Background(), Task{Title: "x", UserID: "u1"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := do(t, r, http.MethodPut, "/tasks/"+strconv.FormatInt(seed.ID, 10), "u1", `{"is_completed":"yes"}`)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestValidateToken(t *testing.T) {
	r, _ := newTestServer(t, "u1")

	rec := do(t, r, http.MethodGet, "/tasks/validate-token", "u1", "")
	expectStatus(t, rec, http.StatusOK)

	var got tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if !got.Valid || got.UserID != "u1" {
		t.Fatalf("unexpected response %+v", got)
	}
}

// End-to-end walk through the documented scenarios.
func TestTaskLifecycleScenarios(t *testing.T) {
	r, _ := newTestServer(t, "u1", "u2")

	// 1: create as u1
	rec := do(t, r, http.MethodPost, "/tasks", "u1", `{"title":"Buy milk"}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decodeTask(t, rec)
	if created.IsCompleted || created.UserID != "u1" || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("scenario 1: unexpected task %+v", created)
	}
	taskPath := "/tasks/" + strconv.FormatInt(created.ID, 10)

	// 2: complete it
	rec = do(t, r, http.MethodPut, taskPath, "u1", `{"is_completed":true}`)
	expectStatus(t, rec, http.StatusOK)
	updated := decodeTask(t, rec)
	if updated.Title != "Buy milk" || !updated.IsCompleted {
		t.Fatalf("scenario 2: unexpected task %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("scenario 2: updated_at %v must be after created_at %v", updated.UpdatedAt, updated.CreatedAt)
	}

	// 3: u2 cannot see, change or delete it
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		body := ""
		if method == http.MethodPut {
			body = `{"title":"hijacked"}`
		}
		rec = do(t, r, method, taskPath, "u2", body)
		expectStatus(t, rec, http.StatusNotFound)
		e := decodeError(t, rec)
		if e.Code != apierror.CodeNotFound || len(e.Details) != 0 {
			t.Fatalf("scenario 3 (%s): unexpected error %+v", method, e)
		}
	}
	rec = do(t, r, http.MethodGet, taskPath, "u1", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeTask(t, rec); got.Title != "Buy milk" {
		t.Fatalf("scenario 3: task modified by another user: %+v", got)
	}

	// 4: no open tasks left
	rec = do(t, r, http.MethodGet, "/tasks?completed=false", "u1", "")
	expectStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); body != `{"tasks":[],"total":0}`+"\n" {
		t.Fatalf("scenario 4: unexpected body %s", body)
	}

	// 5: delete twice
	rec = do(t, r, http.MethodDelete, taskPath, "u1", "")
	expectStatus(t, rec, http.StatusNoContent)
	rec = do(t, r, http.MethodDelete, taskPath, "u1", "")
	expectStatus(t, rec, http.StatusNotFound)

	// 6: blank title
	rec = do(t, r, http.MethodPost, "/tasks", "u1", `{"title":"   "}`)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}
