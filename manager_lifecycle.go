package goSession

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Initialize resolves the stored session and leaves [StatusIdle]. A valid stored session is
// adopted and its renewal armed; an ill-formed one is discarded. Calls after the first, or
// after any other transition, return the current snapshot without effect.
func (m *Manager) Initialize(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.status != StatusIdle || m.initializing || m.closed {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.initializing = true
	gen := m.generation
	m.mu.Unlock()

	sess, state := m.readStored(ctx)

	m.mu.Lock()
	if m.status != StatusIdle || m.generation != gen || m.closed {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	var snap Snapshot
	if state == storedValid {
		snap = m.commitLocked(StatusAuthenticated, sess, true, EventInitialized, nil)
	} else {
		snap = m.commitLocked(StatusUnauthenticated, nil, false, EventInitialized, nil)
	}
	gen = m.generation
	m.mu.Unlock()

	if state == storedInvalid {
		m.metrics.Inc(MetricStoreDiscarded)
		m.writeStore(ctx, gen, nil)
	}
	m.logger.Debug("session initialized", zap.Stringer("status", snap.Status))
	m.flush()
	return snap
}

// Login exchanges credentials for a session. The session is persisted only when
// creds.Remember is set; otherwise any stored envelope is removed. On failure the current
// session is left unchanged and the returned error wraps [ErrLoginFailed] and the cause.
func (m *Manager) Login(ctx context.Context, creds Credentials) (Snapshot, error) {
	if m.isClosed() {
		return m.Snapshot(), ErrManagerClosed
	}
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return m.loginFailed(ctx, creds.Email, ErrInvalidCredentials)
	}

	grant, err := m.exchange.Login(ctx, creds.Email, creds.Password)
	if err == nil && grant == nil {
		err = ErrExchangeRejected
	}
	var sess *Session
	if err == nil {
		sess, err = buildSession(grant.Tokens, grant.User)
	}
	if err != nil {
		return m.loginFailed(ctx, creds.Email, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return m.Snapshot(), ErrManagerClosed
	}
	persist := creds.Remember && m.store.Durable()
	snap := m.commitLocked(StatusAuthenticated, sess, persist, EventLogin, nil)
	gen := m.generation
	m.mu.Unlock()

	if persist {
		m.writeStore(ctx, gen, sess)
	} else {
		m.writeStore(ctx, gen, nil)
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.emitAudit(ctx, EventLogin, &sess.User, true, nil, map[string]string{"remember": fmt.Sprint(creds.Remember)})
	m.logger.Debug("login succeeded", zap.String("user_id", sess.User.ID), zap.Bool("persisted", persist))
	m.flush()
	return snap, nil
}

func (m *Manager) loginFailed(ctx context.Context, email string, cause error) (Snapshot, error) {
	m.metrics.Inc(MetricLoginFailure)
	m.emitAudit(ctx, EventLogin, &SessionUser{Email: email}, false, cause, nil)
	m.logger.Debug("login failed", zap.Error(cause))
	return m.Snapshot(), fmt.Errorf("%w: %w", ErrLoginFailed, cause)
}

// Refresh renews the session with the held refresh token. It is a no-op without one.
//
// Concurrent calls for the same refresh token share one exchange. A result is applied only if
// the session it was requested for is still current; otherwise it is discarded and
// [ErrRefreshSuperseded] is returned. A failed exchange ends the session like [Manager.Logout]
// and returns an error wrapping [ErrRefreshFailed]. If ctx is cancelled before the exchange
// answers, the session is left untouched and the context error is returned.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.session == nil || m.session.Tokens.RefreshToken == "" {
		m.mu.Unlock()
		return nil
	}
	refreshToken := m.session.Tokens.RefreshToken
	gen := m.generation
	m.mu.Unlock()

	_, err, _ := m.refreshGroup.Do(refreshToken, func() (any, error) {
		return nil, m.refresh(ctx, gen, refreshToken)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context, gen uint64, refreshToken string) error {
	start := m.clock.Now()
	grant, err := m.exchange.Refresh(ctx, refreshToken)
	m.metrics.Observe(MetricRefreshLatency, m.clock.Now().Sub(start))

	if err == nil && grant == nil {
		err = ErrExchangeRejected
	}
	var sess *Session
	if err == nil {
		tokens := grant.Tokens
		if tokens.RefreshToken == "" {
			tokens.RefreshToken = refreshToken
		}
		sess, err = buildSession(tokens, grant.User)
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	m.mu.Lock()
	if m.closed || m.generation != gen || m.session == nil || m.session.Tokens.RefreshToken != refreshToken {
		m.mu.Unlock()
		m.metrics.Inc(MetricRefreshStale)
		m.logger.Debug("discarding stale refresh result", zap.Bool("success", err == nil))
		return ErrRefreshSuperseded
	}

	if err != nil {
		old := m.session
		m.commitLocked(StatusUnauthenticated, nil, false, EventLogout, err)
		gen = m.generation
		m.mu.Unlock()

		m.writeStore(ctx, gen, nil)
		m.metrics.Inc(MetricRefreshFailure)
		m.emitAudit(ctx, EventRefreshed, &old.User, false, err, nil)
		m.logger.Warn("renewal failed, session ended", zap.String("user_id", old.User.ID), zap.Error(err))
		m.flush()
		m.invalidate(ctx, old.Tokens)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	persist := m.persisted
	m.commitLocked(StatusAuthenticated, sess, persist, EventRefreshed, nil)
	gen = m.generation
	m.mu.Unlock()

	if persist {
		m.writeStore(ctx, gen, sess)
	}
	m.metrics.Inc(MetricRefreshSuccess)
	m.emitAudit(ctx, EventRefreshed, &sess.User, true, nil, nil)
	m.flush()
	return nil
}

// Logout ends the session locally, then asks the backend to invalidate the tokens that were
// held. Local effects always complete; invalidation errors are logged and counted only.
// Calling Logout again is harmless.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	old := m.session
	m.commitLocked(StatusUnauthenticated, nil, false, EventLogout, nil)
	gen := m.generation
	m.mu.Unlock()

	m.writeStore(ctx, gen, nil)
	m.metrics.Inc(MetricLogout)
	if old != nil {
		m.emitAudit(ctx, EventLogout, &old.User, true, nil, nil)
	}
	m.flush()

	if old != nil {
		m.invalidate(ctx, old.Tokens)
	}
}

func (m *Manager) invalidate(ctx context.Context, tokens TokenPair) {
	if err := m.exchange.Logout(ctx, tokens); err != nil {
		m.metrics.Inc(MetricInvalidationFailure)
		m.logger.Warn("server-side invalidation failed", zap.Error(err))
	}
}

// endSession applies a logout decided elsewhere: another instance logged out, or an API call
// was rejected as unauthorized. No network call is made. An unauthorized end also removes the
// stored envelope so that a late storage change cannot re-adopt it.
func (m *Manager) endSession(ctx context.Context, kind EventKind) {
	m.mu.Lock()
	if m.status == StatusIdle && kind != EventUnauthorized {
		m.mu.Unlock()
		return
	}
	old := m.session
	if old == nil && m.status == StatusUnauthenticated {
		gen := m.generation
		m.mu.Unlock()
		if kind == EventUnauthorized {
			m.writeStore(ctx, gen, nil)
		}
		return
	}
	m.commitLocked(StatusUnauthenticated, nil, false, kind, nil)
	gen := m.generation
	m.mu.Unlock()

	if kind == EventUnauthorized {
		m.writeStore(ctx, gen, nil)
		m.metrics.Inc(MetricUnauthorized)
	} else {
		m.metrics.Inc(MetricForeignLogout)
	}
	m.emitAudit(ctx, kind, userOf(old), true, nil, nil)
	m.logger.Info("session ended externally", zap.Stringer("reason", kind))
	m.flush()
}

// reconcile re-reads storage after another instance changed it. An empty or ill-formed envelope
// ends the local session; a different access token is adopted without writing it back.
func (m *Manager) reconcile(ctx context.Context) {
	if !m.store.Durable() {
		return
	}

	m.mu.Lock()
	if m.status == StatusIdle || m.closed {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	m.mu.Unlock()

	sess, state := m.readStored(ctx)

	m.mu.Lock()
	if m.generation != gen || m.closed {
		m.mu.Unlock()
		return
	}

	switch {
	case state != storedValid && m.session == nil:
		m.mu.Unlock()
		return

	case state != storedValid:
		old := m.session
		m.commitLocked(StatusUnauthenticated, nil, false, EventForeignLogout, nil)
		m.mu.Unlock()

		m.metrics.Inc(MetricForeignLogout)
		m.emitAudit(ctx, EventForeignLogout, &old.User, true, nil, map[string]string{"source": "storage"})
		m.logger.Info("session ended by another instance")

	case m.session != nil && m.session.Tokens.AccessToken == sess.Tokens.AccessToken:
		m.mu.Unlock()
		return

	default:
		m.commitLocked(StatusAuthenticated, sess, true, EventAdopted, nil)
		m.mu.Unlock()

		m.metrics.Inc(MetricSessionAdopted)
		m.emitAudit(ctx, EventAdopted, &sess.User, true, nil, nil)
		m.logger.Debug("adopted session from storage", zap.String("user_id", sess.User.ID))
	}
	m.flush()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func userOf(s *Session) *SessionUser {
	if s == nil {
		return nil
	}
	u := s.User
	return &u
}
