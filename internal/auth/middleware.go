package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	rserrors "reposcope/internal/errors"
	"reposcope/internal/storage"
)

// CookieName is the session cookie.
const CookieName = "token"

type contextKey string

const userKey contextKey = "user"

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *storage.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*storage.User, bool) {
	u, ok := ctx.Value(userKey).(*storage.User)
	return u, ok && u != nil
}

// UserIDFromContext returns the authenticated user's id or nil.
func UserIDFromContext(ctx context.Context) *int64 {
	if u, ok := UserFromContext(ctx); ok {
		id := u.ID
		return &id
	}
	return nil
}

// TokenFromRequest extracts a session token from the Authorization header
// or the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// ErrorWriter writes err as an HTTP response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware wires the manager and limiter into HTTP handlers.
type Middleware struct {
	manager  *Manager
	limiter  *RateLimiter
	proxies  TrustedProxies
	writeErr ErrorWriter
}

// NewMiddleware creates the auth middleware. limiter may be nil.
func NewMiddleware(manager *Manager, limiter *RateLimiter, proxies TrustedProxies, writeErr ErrorWriter) *Middleware {
	return &Middleware{manager: manager, limiter: limiter, proxies: proxies, writeErr: writeErr}
}

// RequireAuth rejects requests without a valid session.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.manager.Authenticate(r.Context(), TokenFromRequest(r))
		if err != nil {
			m.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the session user when a valid token is present and
// otherwise serves the request anonymously.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := TokenFromRequest(r); token != "" {
			if user, err := m.manager.Authenticate(r.Context(), token); err == nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit throttles requests per client IP.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	if m.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := m.limiter.Allow(m.proxies.ClientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			m.writeErr(w, r, rserrors.New(rserrors.RateLimited, "too many requests", nil).
				WithDetails(map[string]int{"retryAfter": retryAfter}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie stores the token in an HttpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
