package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
	appmw "github.com/Mannan1101/Hackathon-II-Phase-2/internal/middleware"
)

func TestSecureHeaders(t *testing.T) {
	for _, hsts := range []bool{false, true} {
		r := chi.NewRouter()
		r.Use(appmw.SecureHeaders(hsts))
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))

		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("missing nosniff")
		}
		if rec.Header().Get("X-Frame-Options") != "DENY" {
			t.Errorf("missing frame options")
		}
		if got := rec.Header().Get("Strict-Transport-Security") != ""; got != hsts {
			t.Errorf("hsts=%v but header present=%v", hsts, got)
		}
	}
}

func TestProcessTime(t *testing.T) {
	r := chi.NewRouter()
	r.Use(appmw.ProcessTime)
	r.Get("/write", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/silent", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/write", "/silent"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		raw := rec.Header().Get("X-Process-Time")
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			t.Errorf("%s: expected numeric X-Process-Time, got %q", path, raw)
		}
	}
}

func TestRequestLogger_IncludesCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	v, err := auth.NewVerifier(secret, auth.Options{})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(appmw.RequestLogger(logger))
	r.Group(func(r chi.Router) {
		r.Use(appmw.AuthMiddleware(appmw.AuthConfig{Verifier: v}))
		r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	req := httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}))
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["msg"] != "http_request" {
		t.Fatalf("unexpected log line %v", line)
	}
	if line["user_id"] != "user-42" {
		t.Errorf("expected user_id user-42, got %v", line["user_id"])
	}
	if line["req_id"] == "" || line["req_id"] == nil {
		t.Errorf("expected req_id in log line")
	}
	if line["status"] != float64(200) {
		t.Errorf("expected status 200, got %v", line["status"])
	}
}
