package guard

import (
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/stretchr/testify/require"
)

func TestDecideIdleIsPending(t *testing.T) {
	for _, path := range []string{"/", "/settings", "/login", "/forbidden"} {
		d := Decide(goSession.StatusIdle, path, nil)
		require.Equal(t, Decision{Outcome: Pending}, d, path)
		require.False(t, d.Redirect())
	}
}

func TestDecideUnauthenticatedProtectedRedirectsToLogin(t *testing.T) {
	d := Decide(goSession.StatusUnauthenticated, "/settings", nil)
	require.Equal(t, RedirectLogin, d.Outcome)
	require.Equal(t, "/login?next=/settings", d.Location)
}

func TestDecideLoginLocationKeepsQuery(t *testing.T) {
	d := Decide(goSession.StatusUnauthenticated, "/chatbot/thread?id=7&x=a b", nil)
	require.Equal(t, RedirectLogin, d.Outcome)
	require.Equal(t, "/login?next=/chatbot/thread%3Fid%3D7%26x%3Da+b", d.Location)
}

func TestDecideUnauthenticatedPublicAdmits(t *testing.T) {
	for _, path := range []string{"/", "/login", "/register", "/forbidden", "/settingsx"} {
		require.Equal(t, Admit, Decide(goSession.StatusUnauthenticated, path, nil).Outcome, path)
	}
}

func TestDecideAuthenticatedAuthOnlyRedirectsToLanding(t *testing.T) {
	for _, path := range []string{"/login", "/register", "/login?next=/settings"} {
		d := Decide(goSession.StatusAuthenticated, path, []string{"user"})
		require.Equal(t, Decision{Outcome: RedirectLanding, Location: "/chatbot"}, d, path)
	}
}

func TestDecideAuthOnlyMatchIsExact(t *testing.T) {
	d := Decide(goSession.StatusAuthenticated, "/login/help", nil)
	require.Equal(t, Admit, d.Outcome)
}

func TestDecideProtectedMatchIsSegmentAware(t *testing.T) {
	routes := DefaultRoutes()

	require.Equal(t, RedirectLogin, routes.Decide(goSession.StatusUnauthenticated, "/settings/profile", nil).Outcome)
	require.Equal(t, RedirectLogin, routes.Decide(goSession.StatusUnauthenticated, "/settings/", nil).Outcome)
	require.Equal(t, Admit, routes.Decide(goSession.StatusUnauthenticated, "/settingsx", nil).Outcome)
}

func TestDecideRoleMismatchRedirectsToForbidden(t *testing.T) {
	routes := DefaultRoutes()
	routes.Protected = append(routes.Protected, Route{Path: "/admin", Roles: []string{"admin"}})

	d := routes.Decide(goSession.StatusAuthenticated, "/admin/roles", []string{"user", "viewer"})
	require.Equal(t, Decision{Outcome: RedirectForbidden, Location: "/forbidden"}, d)

	d = routes.Decide(goSession.StatusAuthenticated, "/admin/roles", []string{"viewer", "admin"})
	require.Equal(t, Admit, d.Outcome)

	d = routes.Decide(goSession.StatusAuthenticated, "/admin", nil)
	require.Equal(t, RedirectForbidden, d.Outcome)
}

func TestDecideMostSpecificRouteWins(t *testing.T) {
	routes := Routes{
		Protected: []Route{
			{Path: "/admin"},
			{Path: "/admin/billing", Roles: []string{"billing"}},
		},
		LoginPath:     "/login",
		ForbiddenPath: "/forbidden",
		LandingPath:   "/",
	}

	require.Equal(t, Admit, routes.Decide(goSession.StatusAuthenticated, "/admin/users", nil).Outcome)
	require.Equal(t, RedirectForbidden, routes.Decide(goSession.StatusAuthenticated, "/admin/billing/x", nil).Outcome)
}

func TestDecideAuthenticatedProtectedWithoutRolesAdmits(t *testing.T) {
	d := Decide(goSession.StatusAuthenticated, "/chatbot", []string{})
	require.Equal(t, Decision{Outcome: Admit}, d)
}

func TestLoginLocationCustomParam(t *testing.T) {
	routes := DefaultRoutes()
	routes.LoginPath = "/signin"
	routes.ReturnParam = "return_to"

	require.Equal(t, "/signin?return_to=/chatbot", routes.LoginLocation("/chatbot"))
	require.Equal(t, "/signin?return_to=/", routes.LoginLocation(""))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "pending", Pending.String())
	require.Equal(t, "redirect_forbidden", RedirectForbidden.String())
	require.Equal(t, "unknown", Outcome(99).String())
}
