package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/apierror"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
)

// IdentityVerifier turns a bearer token into a caller id.
type IdentityVerifier interface {
	Verify(token string) (string, error)
}

type AuthConfig struct {
	Verifier IdentityVerifier
}

var authFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Rejected bearer credentials by reason",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(authFailuresTotal)
}

// AuthMiddleware requires "Authorization: Bearer <token>" and stores the
// verified caller id in the request context. Failures never reach next.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				authFailuresTotal.WithLabelValues("missing").Inc()
				apierror.Unauthenticated(w, "Not authenticated")
				return
			}

			callerID, err := cfg.Verifier.Verify(token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					authFailuresTotal.WithLabelValues("expired").Inc()
					apierror.Unauthenticated(w, "Token has expired")
					return
				}
				authFailuresTotal.WithLabelValues("invalid").Inc()
				apierror.Unauthenticated(w, "Invalid token")
				return
			}

			noteCaller(r.Context(), callerID)
			next.ServeHTTP(w, r.WithContext(auth.WithCallerID(r.Context(), callerID)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
