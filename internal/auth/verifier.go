// Package auth verifies externally issued bearer tokens and carries the
// resulting caller identity through a request context.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the minimum HMAC secret length in bytes.
const MinSecretLen = 32

const tokenPrefixLen = 10

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrTokenExpired    = fmt.Errorf("%w: token has expired", ErrUnauthenticated)
	ErrMissingSubject  = fmt.Errorf("%w: token missing 'sub' claim", ErrUnauthenticated)
	ErrInvalidToken    = fmt.Errorf("%w: invalid token", ErrUnauthenticated)

	ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLen)
)

type Options struct {
	// Leeway tolerated on exp/nbf checks.
	Leeway time.Duration
	Logger *slog.Logger
}

// Verifier validates HS256 tokens against a server-held secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	logger *slog.Logger
}

func NewVerifier(secret string, opts Options) (*Verifier, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if opts.Leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(opts.Leeway))
	}

	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(parserOpts...),
		logger: logger,
	}, nil
}

// Verify returns the token's subject. Every error wraps ErrUnauthenticated.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" {
		v.logger.Warn("auth_failed", slog.String("reason", "missing token"))
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			v.logger.Warn("auth_failed",
				slog.String("reason", "token expired"),
				slog.String("token_prefix", TokenPrefix(token)),
			)
			return "", ErrTokenExpired
		}
		v.logger.Warn("auth_failed",
			slog.String("reason", "invalid token"),
			slog.String("error", err.Error()),
			slog.String("token_prefix", TokenPrefix(token)),
		)
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		v.logger.Warn("auth_failed",
			slog.String("reason", "missing sub claim"),
			slog.String("token_prefix", TokenPrefix(token)),
		)
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// TokenPrefix returns a redacted form of token safe for logs.
func TokenPrefix(token string) string {
	if len(token) <= tokenPrefixLen {
		return "..."
	}
	return token[:tokenPrefixLen] + "..."
}
