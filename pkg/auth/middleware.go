package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "hireprep-server/pkg/errors"
)

type contextKey struct{}

var claimsKey contextKey

// Middleware guards HTTP handlers with JWT authentication.
type Middleware struct {
	service     *Service
	logger      *logrus.Entry
	exemptPaths []string
}

// NewMiddleware creates the authentication middleware. Requests to exempt
// paths pass through unauthenticated.
func NewMiddleware(service *Service, logger *logrus.Logger, exemptPaths []string) *Middleware {
	if exemptPaths == nil {
		exemptPaths = []string{"/health", "/metrics", "/api/register", "/api/login"}
	}
	return &Middleware{
		service:     service,
		logger:      logger.WithField("component", "auth_middleware"),
		exemptPaths: exemptPaths,
	}
}

// Handler wraps next with token validation. Validated claims are placed on
// the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isPathExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.authenticate(r)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"error":  err.Error(),
			}).Warning("Authentication failed")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// authenticate accepts a Bearer token in the Authorization header, or a
// token query parameter on websocket upgrade requests where browsers
// cannot set headers.
func (m *Middleware) authenticate(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return m.service.ValidateToken(authHeader)
	}

	if token := r.URL.Query().Get("token"); token != "" && isWebSocketRequest(r) {
		return m.service.ValidateToken(token)
	}

	return nil, apperrors.ErrUnauthenticated
}

func (m *Middleware) isPathExempt(path string) bool {
	for _, exempt := range m.exemptPaths {
		if path == exempt || strings.HasPrefix(path, exempt+"/") {
			return true
		}
	}
	return false
}

func isWebSocketRequest(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return true
	}
	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}

// WithClaims returns a context carrying the validated claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts validated claims from a request context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
