// Package middleware provides the HTTP middleware chain of the API server.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/httputil"
	"github.com/R3E-Network/sentinel/internal/logging"
)

type principalKey struct{}

// Authenticator resolves an access token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (account.User, error)
}

// AuthMiddleware requires a valid access token on every request except the
// skipped paths and prefixes.
type AuthMiddleware struct {
	auth         Authenticator
	logger       *logging.Logger
	skipPaths    map[string]bool
	skipPrefixes []string
}

// NewAuthMiddleware creates a new authentication middleware. Entries of skip
// ending in "/*" skip every path under that prefix.
func NewAuthMiddleware(auth Authenticator, logger *logging.Logger, skip []string) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewDefault("auth")
	}
	m := &AuthMiddleware{auth: auth, logger: logger, skipPaths: make(map[string]bool)}
	for _, path := range skip {
		if strings.HasSuffix(path, "/*") {
			m.skipPrefixes = append(m.skipPrefixes, strings.TrimSuffix(path, "*"))
			continue
		}
		m.skipPaths[path] = true
	}
	return m
}

func (m *AuthMiddleware) skipped(path string) bool {
	if m.skipPaths[path] || m.skipPaths[path+"/"] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipped(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := BearerToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}
		user, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		p := account.PrincipalOf(user)
		ctx := WithPrincipal(r.Context(), p)
		m.logger.WithContext(ctx).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the access token from the Authorization header or,
// for websocket clients that cannot set headers, the token query parameter.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", apperrors.Unauthorized("missing token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.Unauthorized("malformed authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	se := apperrors.GetServiceError(err)
	if se == nil {
		se = apperrors.Internal("Authentication failed.", err)
	}
	httputil.WriteError(w, se)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": se.HTTPStatus,
	}).Warn("authentication failed")
}

// WithPrincipal stores p in ctx together with the logging identifiers.
func WithPrincipal(ctx context.Context, p account.Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	ctx = context.WithValue(ctx, logging.UserIDKey, strconv.FormatInt(p.UserID, 10))
	return context.WithValue(ctx, logging.RoleKey, string(p.Role))
}

// PrincipalFrom returns the authenticated principal.
func PrincipalFrom(ctx context.Context) (account.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(account.Principal)
	return p, ok
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// RequireAdmin rejects authenticated non-admin callers with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			httputil.WriteError(w, apperrors.Unauthorized(""))
			return
		}
		if !p.IsAdmin() {
			httputil.WriteError(w, apperrors.Forbidden())
			return
		}
		next.ServeHTTP(w, r)
	})
}
