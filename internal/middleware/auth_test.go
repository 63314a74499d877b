package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/logging"
)

type fakeAuth struct {
	users map[string]account.User
}

func (f fakeAuth) Authenticate(_ context.Context, token string) (account.User, error) {
	u, ok := f.users[token]
	if !ok {
		return account.User{}, apperrors.InvalidToken(errors.New("unknown token"))
	}
	if !u.IsActive {
		return account.User{}, apperrors.AuthenticationFailed(errors.New("user is inactive"))
	}
	return u, nil
}

func newAuth() *AuthMiddleware {
	auth := fakeAuth{users: map[string]account.User{
		"good":     {ID: 7, Email: "u@example.com", Role: account.RoleUser, IsActive: true},
		"admin":    {ID: 1, Email: "a@example.com", Role: account.RoleAdmin, IsActive: true},
		"inactive": {ID: 9, Email: "x@example.com", Role: account.RoleUser},
	}}
	return NewAuthMiddleware(auth, logging.New("test", "error", "json"), []string{"/api/auth/login/", "/static/*"})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestAuthMiddlewareSkipPaths(t *testing.T) {
	m := newAuth()
	called := 0
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ }))

	for _, path := range []string{"/api/auth/login/", "/static/app.css"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	if called != 2 {
		t.Fatalf("expected skipped paths to reach the handler, got %d calls", called)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	m := newAuth()
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"unknown token", "Bearer nope"},
		{"inactive user", "Bearer inactive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cameras/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			body := decodeEnvelope(t, rec)
			if body["success"] != false {
				t.Fatalf("expected failure envelope, got %v", body)
			}
		})
	}
}

func TestAuthMiddlewareStoresPrincipal(t *testing.T) {
	m := newAuth()
	var got account.Principal
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			t.Fatalf("principal missing from context")
		}
		got = p
		if GetUserID(r.Context()) != "7" {
			t.Fatalf("user id not in logging context: %q", GetUserID(r.Context()))
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cameras/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || got.UserID != 7 || got.Role != account.RoleUser {
		t.Fatalf("unexpected result %d %+v", rec.Code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/alerts/stream/?token=good", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query token should authenticate, got %d", rec.Code)
	}
}

func TestAuthMiddlewarePreservesTraceID(t *testing.T) {
	m := newAuth()
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.GetTraceID(r.Context()) != "trace-1" {
			t.Fatalf("trace id lost")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/cameras/", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-1"))
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name string
		ctx  func(context.Context) context.Context
		want int
	}{
		{"anonymous", func(ctx context.Context) context.Context { return ctx }, http.StatusUnauthorized},
		{"user", func(ctx context.Context) context.Context {
			return WithPrincipal(ctx, account.Principal{UserID: 2, Role: account.RoleUser})
		}, http.StatusForbidden},
		{"superuser", func(ctx context.Context) context.Context {
			return WithPrincipal(ctx, account.Principal{UserID: 3, Role: account.RoleUser, IsSuperuser: true})
		}, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/users/", nil)
		req = req.WithContext(tc.ctx(req.Context()))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.New("test", "error", "json"))
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/alerts/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	other := httptest.NewRequest(http.MethodGet, "/api/alerts/", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("limits are per client, got %d", rec.Code)
	}

	rl.now = func() time.Time { return time.Now().Add(time.Hour) }
	rl.Cleanup(time.Minute)
	if len(rl.limiters) != 0 {
		t.Fatalf("idle limiters should be dropped, have %d", len(rl.limiters))
	}
}

func TestCORS(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.com"})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/cameras/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("preflight failed: %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/cameras/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.New("test", "error", "json"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestTracingMiddlewareSetsHeader(t *testing.T) {
	m := NewTracingMiddleware(logging.New("test", "error", "json"))
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.GetTraceID(r.Context()) == "" {
			t.Fatalf("trace id missing")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Trace-ID") == "" || rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}
}
