package guard

import (
	"context"
	"net/http"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
)

// SessionCookie is the name of the presence cookie.
const SessionCookie = "access_token"

type userContextKey struct{}

// UserFromContext returns the session user injected by [Middleware].
func UserFromContext(ctx context.Context) (goSession.SessionUser, bool) {
	u, ok := ctx.Value(userContextKey{}).(goSession.SessionUser)
	return u, ok
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u goSession.SessionUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// Middleware applies routes to every request using the state of source. Pending requests get
// 503 with Retry-After; redirects use 303. Admitted requests of an authenticated session carry
// the user, see [UserFromContext].
func Middleware(source SnapshotSource, routes Routes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			snap := source.Snapshot()
			d := routes.Decide(snap.Status, r.URL.RequestURI(), snap.Roles())

			switch d.Outcome {
			case Pending:
				w.Header().Set("Retry-After", strconv.Itoa(1))
				http.Error(w, "session pending", http.StatusServiceUnavailable)
				return
			case RedirectLogin, RedirectLanding, RedirectForbidden:
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
				return
			}

			if u, ok := snap.User(); ok {
				r = r.WithContext(WithUser(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Precheck redirects on the presence cookie alone, before any session state is consulted:
// auth-only paths with the cookie go to the landing page, protected paths without it go to
// login. Role requirements are ignored.
func Precheck(routes Routes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasSession := HasSessionCookie(r)
			path := pathOf(r.URL.Path)

			if routes.authOnly(path) {
				if hasSession {
					http.Redirect(w, r, routes.LandingPath, http.StatusSeeOther)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if _, protected := routes.protectedRoute(path); protected && !hasSession {
				http.Redirect(w, r, routes.LoginLocation(path), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasSessionCookie reports whether r carries a non-empty presence cookie.
func HasSessionCookie(r *http.Request) bool {
	c, err := r.Cookie(SessionCookie)
	return err == nil && c.Value != ""
}

// MarkSession sets the presence cookie.
func MarkSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "1",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession expires the presence cookie.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
