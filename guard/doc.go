// Package guard decides whether a navigation target may be shown for the current session.
//
// # Decisions
//
//   - [Pending]: the session has not resolved yet; render a neutral state, do not redirect.
//   - [RedirectLogin]: the path requires a session; the original target is kept in the
//     return parameter (for example /login?next=/settings).
//   - [RedirectLanding]: an authenticated user asked for an auth-only page such as /login.
//   - [RedirectForbidden]: the path requires roles the session does not hold.
//   - [Admit]: everything else.
//
// [Routes.Decide] is pure. [Navigator] re-evaluates it on every session event and every
// navigation, and [Middleware] applies it to net/http requests.
//
// # Presence cookie
//
// [MarkSession] and [ClearSession] maintain a non-authoritative access_token=1 cookie.
// [Precheck] uses it for a coarse redirect before any session state is available. It is never
// used for role checks.
//
// # What this package must NOT do
//
//   - Trust claims for anything beyond routing. Roles come from unverified tokens; the backend
//     enforces authorization.
//   - Change session state. It reads snapshots only.
package guard
