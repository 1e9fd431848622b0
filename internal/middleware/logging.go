package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RequestLogger logs one line per request. It must run outside the auth
// middleware; the caller id is read back from the request it hands down.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			holder := &callerHolder{}

			next.ServeHTTP(sw, r.WithContext(withCallerHolder(r.Context(), holder)))

			dur := time.Since(start)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Float64("duration_ms", float64(dur.Microseconds())/1000.0),
				slog.Int("size", sw.bytes),
				slog.String("ip", clientIP(r)),
				slog.String("ua", r.UserAgent()),
				slog.String("req_id", chimw.GetReqID(r.Context())),
			}
			if holder.id != "" {
				attrs = append(attrs, slog.String("user_id", holder.id))
			}
			logger.Info("http_request", attrs...)
		})
	}
}

// ProcessTime reports handler latency in seconds in X-Process-Time.
func ProcessTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		hw := &headerHook{ResponseWriter: w, before: func(h http.Header) {
			h.Set("X-Process-Time", strconv.FormatFloat(time.Since(start).Seconds(), 'f', 6, 64))
		}}
		next.ServeHTTP(hw, r)
		hw.fire()
	})
}

func clientIP(r *http.Request) string {
	return r.RemoteAddr
}

// callerHolder lets the auth middleware report the caller id back to the
// logger, which only sees the outer request.
type callerHolder struct {
	id string
}

type holderKey struct{}

func withCallerHolder(ctx context.Context, h *callerHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func noteCaller(ctx context.Context, id string) {
	if h, ok := ctx.Value(holderKey{}).(*callerHolder); ok {
		h.id = id
	}
}
