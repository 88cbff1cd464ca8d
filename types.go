package goSession

import (
	"context"
	"slices"
)

// Status is the coarse session state.
type Status uint8

const (
	// StatusIdle is held until the first resolution of stored state completes.
	StatusIdle Status = iota
	// StatusAuthenticated means a session is held.
	StatusAuthenticated
	// StatusUnauthenticated means no session is held.
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// TokenPair is the credential pair issued by the backend.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionUser is the identity read from the latest access token.
type SessionUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// HasAnyRole reports whether the user holds at least one of roles.
func (u SessionUser) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(u.Roles, r) {
			return true
		}
	}
	return false
}

func (u SessionUser) clone() SessionUser {
	u.Roles = slices.Clone(u.Roles)
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return u
}

// Session is the token pair together with the identity derived from it.
type Session struct {
	Tokens TokenPair
	User   SessionUser
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{Tokens: s.Tokens, User: s.User.clone()}
}

// Snapshot is a copy of the manager state taken at one transition.
type Snapshot struct {
	Status Status
	// Session is nil unless Status is StatusAuthenticated.
	Session *Session
	// Persisted reports whether the session is held in durable storage.
	Persisted bool
	// Version increases by one on every transition.
	Version uint64
}

// Authenticated reports whether the snapshot holds a session.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Session != nil
}

// User returns the session user, if any.
func (s Snapshot) User() (SessionUser, bool) {
	if !s.Authenticated() {
		return SessionUser{}, false
	}
	return s.Session.User.clone(), true
}

// Roles returns the session roles, or an empty list.
func (s Snapshot) Roles() []string {
	u, ok := s.User()
	if !ok {
		return []string{}
	}
	return u.Roles
}

// Credentials is the input to [Manager.Login].
type Credentials struct {
	Email    string
	Password string
	// Remember persists the session so that it survives a restart.
	Remember bool
}

// Grant is a normalized exchange response.
type Grant struct {
	Tokens TokenPair
	// User is the identity reported by the backend alongside the tokens, if any. Identity fields
	// missing from the access token are filled from it; roles always come from the token.
	User *SessionUser
}

// Exchanger is the backend collaborator used by [Manager].
type Exchanger interface {
	// Login exchanges credentials for a token pair.
	Login(ctx context.Context, email, password string) (*Grant, error)
	// Refresh exchanges a refresh token for a new token pair. An empty refresh token in the
	// result means the old one stays valid.
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	// Logout invalidates tokens server-side.
	Logout(ctx context.Context, tokens TokenPair) error
}

// EventKind identifies the transition that produced an [Event].
type EventKind uint8

const (
	// EventInitialized is emitted once when the manager leaves StatusIdle through Initialize.
	EventInitialized EventKind = iota + 1
	// EventLogin is emitted after a successful login.
	EventLogin
	// EventRefreshed is emitted after a successful renewal.
	EventRefreshed
	// EventLogout is emitted after a local logout, including one forced by a failed renewal.
	EventLogout
	// EventAdopted is emitted when a session written by another instance is adopted.
	EventAdopted
	// EventForeignLogout is emitted when another instance ended the session.
	EventForeignLogout
	// EventUnauthorized is emitted after an unauthorized notification ended the session.
	EventUnauthorized
)

func (k EventKind) String() string {
	switch k {
	case EventInitialized:
		return "initialized"
	case EventLogin:
		return "login"
	case EventRefreshed:
		return "refresh"
	case EventLogout:
		return "logout"
	case EventAdopted:
		return "adopt"
	case EventForeignLogout:
		return "foreign_logout"
	case EventUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners after every transition.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
	// Err is the cause of a forced logout, such as a failed renewal.
	Err error
}

// Listener receives events. It runs on a goroutine that performed a transition, after the
// state lock has been released, and may call back into the manager.
type Listener func(Event)
