package guard

import (
	"net/url"
	"slices"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// Outcome is the kind of a [Decision].
type Outcome uint8

const (
	// Pending means the session has not resolved yet.
	Pending Outcome = iota
	// Admit means the target may be shown.
	Admit
	// RedirectLogin sends an unauthenticated user to the login page.
	RedirectLogin
	// RedirectLanding sends an authenticated user away from an auth-only page.
	RedirectLanding
	// RedirectForbidden sends a user lacking the required roles to the forbidden page.
	RedirectForbidden
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Admit:
		return "admit"
	case RedirectLogin:
		return "redirect_login"
	case RedirectLanding:
		return "redirect_landing"
	case RedirectForbidden:
		return "redirect_forbidden"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating one navigation target.
type Decision struct {
	Outcome Outcome
	// Location is the redirect target. Empty unless Outcome is a redirect.
	Location string
}

// Redirect reports whether the decision sends the user elsewhere.
func (d Decision) Redirect() bool {
	return d.Location != ""
}

// Route is a protected path prefix. A user needs at least one of Roles; no roles means any
// authenticated user.
type Route struct {
	Path  string
	Roles []string
}

// Routes is the navigation policy.
type Routes struct {
	Protected     []Route
	AuthOnly      []string
	LoginPath     string
	ReturnParam   string
	LandingPath   string
	ForbiddenPath string
}

// DefaultRoutes returns the dashboard policy: /chatbot and /settings require a session,
// /login and /register are for signed-out users only.
func DefaultRoutes() Routes {
	return Routes{
		Protected: []Route{
			{Path: "/chatbot"},
			{Path: "/settings"},
		},
		AuthOnly:      []string{"/login", "/register"},
		LoginPath:     "/login",
		ReturnParam:   "next",
		LandingPath:   "/chatbot",
		ForbiddenPath: "/forbidden",
	}
}

// Decide evaluates target against the default routes.
func Decide(status goSession.Status, target string, roles []string) Decision {
	return DefaultRoutes().Decide(status, target, roles)
}

// Decide evaluates target for a session in status holding roles. target may carry a query
// string; only its path is matched, and the whole target is preserved in the login redirect.
func (r Routes) Decide(status goSession.Status, target string, roles []string) Decision {
	if status == goSession.StatusIdle {
		return Decision{Outcome: Pending}
	}

	path := pathOf(target)
	route, protected := r.protectedRoute(path)
	authenticated := status == goSession.StatusAuthenticated

	switch {
	case protected && !authenticated:
		return Decision{Outcome: RedirectLogin, Location: r.LoginLocation(target)}
	case authenticated && r.authOnly(path):
		return Decision{Outcome: RedirectLanding, Location: r.LandingPath}
	case protected && len(route.Roles) > 0 && !intersects(route.Roles, roles):
		return Decision{Outcome: RedirectForbidden, Location: r.ForbiddenPath}
	default:
		return Decision{Outcome: Admit}
	}
}

// LoginLocation returns the login path carrying target as the return parameter.
func (r Routes) LoginLocation(target string) string {
	if target == "" {
		target = "/"
	}
	param := r.ReturnParam
	if param == "" {
		param = "next"
	}
	escaped := strings.ReplaceAll(url.QueryEscape(target), "%2F", "/")
	return r.LoginPath + "?" + url.QueryEscape(param) + "=" + escaped
}

// protectedRoute returns the most specific protected route matching path.
func (r Routes) protectedRoute(path string) (Route, bool) {
	var best Route
	found := false
	for _, route := range r.Protected {
		if !matchPrefix(route.Path, path) {
			continue
		}
		if !found || len(route.Path) > len(best.Path) {
			best, found = route, true
		}
	}
	return best, found
}

func (r Routes) authOnly(path string) bool {
	return slices.Contains(r.AuthOnly, path)
}

// matchPrefix reports whether path is prefix or lies below it on a segment boundary.
func matchPrefix(prefix, path string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func pathOf(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return "/"
	}
	return target
}

func intersects(required, held []string) bool {
	for _, r := range required {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}
