package middleware

import "net/http"

// SecureHeaders sets the browser hardening headers on every response. HSTS
// is only sent when hsts is true.
func SecureHeaders(hsts bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Content-Security-Policy", "default-src 'self'")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// headerHook runs before once, right before the status line is written.
type headerHook struct {
	http.ResponseWriter
	before func(http.Header)
	done   bool
}

func (w *headerHook) fire() {
	if !w.done {
		w.done = true
		w.before(w.ResponseWriter.Header())
	}
}

func (w *headerHook) WriteHeader(code int) {
	w.fire()
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerHook) Write(b []byte) (int, error) {
	w.fire()
	return w.ResponseWriter.Write(b)
}
