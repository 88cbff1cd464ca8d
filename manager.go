package goSession

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/token"
	"github.com/MrEthical07/goSession/vault"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Manager owns the in-memory session and its lifecycle. Build one with [New].
type Manager struct {
	cfg      Config
	exchange Exchanger
	store    *vault.Store
	clock    Clock
	logger   *zap.Logger
	metrics  *Metrics
	audit    *audit.Dispatcher

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu           sync.Mutex
	status       Status
	session      *Session
	persisted    bool
	generation   uint64
	version      uint64
	initializing bool
	closed       bool
	timer        Timer
	timerAt      time.Time

	listeners  []listenerEntry
	nextListen uint64
	pending    []Event
	delivering bool

	storeMu      sync.Mutex
	refreshGroup singleflight.Group
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// User returns the current session user, if authenticated.
func (m *Manager) User() (SessionUser, bool) {
	return m.Snapshot().User()
}

// PendingRenewal returns when the armed renewal timer fires.
func (m *Manager) PendingRenewal() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		return time.Time{}, false
	}
	return m.timerAt, true
}

// MetricsSnapshot returns the current counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Close cancels the renewal timer and background work and flushes the audit dispatcher.
// Local logout keeps working after Close; login and refresh return [ErrManagerClosed].
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()

	m.cancelBase()
	m.audit.Close()
	return nil
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:    m.status,
		Persisted: m.persisted,
		Version:   m.version,
	}
	if m.status == StatusAuthenticated {
		snap.Session = m.session.clone()
	}
	return snap
}

// commitLocked replaces status and session in one step, re-arms or cancels the renewal timer,
// and queues the event for delivery by flush.
func (m *Manager) commitLocked(status Status, sess *Session, persisted bool, kind EventKind, cause error) Snapshot {
	m.status = status
	m.session = sess
	m.persisted = persisted && sess != nil
	m.generation++
	m.version++

	m.stopTimerLocked()
	if sess != nil && !m.closed {
		m.armLocked(sess.Tokens.AccessToken)
	}

	snap := m.snapshotLocked()
	m.pending = append(m.pending, Event{Kind: kind, Snapshot: snap, Err: cause})
	return snap
}

/*
====================================
RENEWAL SCHEDULING
====================================
*/

func (m *Manager) armLocked(accessToken string) {
	now := m.clock.Now()
	delay, ok := token.RefreshLeadTimeAt(accessToken, m.cfg.Renewal.SafetyMargin, now)
	if !ok {
		return
	}

	gen := m.generation
	m.timerAt = now.Add(delay)
	m.timer = m.clock.AfterFunc(delay, func() {
		m.onRenewalDue(gen)
	})
	m.metrics.Inc(MetricRenewalArmed)
	m.logger.Debug("renewal armed", zap.Duration("in", delay))
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = nil
	m.timerAt = time.Time{}
}

func (m *Manager) onRenewalDue(gen uint64) {
	m.mu.Lock()
	if m.closed || m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.timerAt = time.Time{}
	m.mu.Unlock()

	for {
		err := m.Refresh(m.baseCtx)
		if err == nil {
			return
		}
		// A caller-driven Refresh sharing the exchange was cancelled. Nothing was committed, so
		// without another attempt the session would keep running with no renewal armed.
		if isContextError(err) && m.baseCtx.Err() == nil && m.renewalOwed(gen) {
			m.logger.Debug("shared refresh was cancelled, retrying background renewal")
			continue
		}
		m.logger.Info("background renewal did not apply", zap.Error(err))
		return
	}
}

// renewalOwed reports whether the session renewed by the timer of gen is still current and
// nothing re-armed renewal since.
func (m *Manager) renewalOwed(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.generation == gen && m.session != nil && m.timer == nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

/*
====================================
LISTENERS
====================================
*/

type listenerEntry struct {
	id uint64
	fn Listener
}

// Subscribe registers fn for every subsequent transition. Listeners run in registration order.
// The returned function removes the listener.
func (m *Manager) Subscribe(fn Listener) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	m.nextListen++
	id := m.nextListen
	next := make([]listenerEntry, len(m.listeners), len(m.listeners)+1)
	copy(next, m.listeners)
	m.listeners = append(next, listenerEntry{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.listeners = slices.DeleteFunc(slices.Clone(m.listeners), func(e listenerEntry) bool {
				return e.id == id
			})
		})
	}
}

// flush delivers queued events in commit order. If another goroutine is already delivering,
// it picks up the queued events instead.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true

	for len(m.pending) > 0 {
		ev := m.pending[0]
		m.pending[0] = Event{}
		m.pending = m.pending[1:]
		listeners := m.listeners
		m.mu.Unlock()

		for _, l := range listeners {
			m.callListener(l.fn, ev)
		}

		m.mu.Lock()
	}

	m.delivering = false
	m.mu.Unlock()
}

func (m *Manager) callListener(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session listener panicked", zap.Stringer("event", ev.Kind), zap.Any("panic", r))
		}
	}()
	fn(ev)
}

/*
====================================
STORAGE
====================================
*/

type storedEnvelope struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         SessionUser `json:"user"`
}

type storedState uint8

const (
	storedAbsent storedState = iota
	storedInvalid
	storedValid
)

func (m *Manager) readStored(ctx context.Context) (*Session, storedState) {
	key := m.cfg.Storage.Key

	var env storedEnvelope
	if !m.store.Get(ctx, key, &env) {
		if m.store.Has(ctx, key) {
			return nil, storedInvalid
		}
		return nil, storedAbsent
	}

	tokens := TokenPair{AccessToken: env.AccessToken, RefreshToken: env.RefreshToken}
	sess, err := buildSession(tokens, &env.User)
	if err != nil {
		m.logger.Debug("stored session is ill-formed", zap.Error(err))
		return nil, storedInvalid
	}
	if tokens.RefreshToken == "" && token.IsExpiredAt(tokens.AccessToken, 0, m.clock.Now()) {
		m.logger.Debug("stored session expired and cannot be renewed")
		return nil, storedInvalid
	}
	return sess, storedValid
}

// writeStore persists sess, or removes the envelope when sess is nil. The write is skipped when
// a newer transition than gen has been committed; that transition writes its own state.
func (m *Manager) writeStore(ctx context.Context, gen uint64, sess *Session) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.Lock()
	current := m.generation
	m.mu.Unlock()
	if current != gen {
		return
	}

	ctx = context.WithoutCancel(ctx)
	key := m.cfg.Storage.Key

	var err error
	if sess == nil {
		err = m.store.Remove(ctx, key)
	} else {
		err = m.store.Set(ctx, key, storedEnvelope{
			AccessToken:  sess.Tokens.AccessToken,
			RefreshToken: sess.Tokens.RefreshToken,
			User:         sess.User,
		})
	}
	if err != nil {
		m.logger.Warn("session storage write failed", zap.Bool("remove", sess == nil), zap.Error(err))
	}
}

/*
====================================
SESSION CONSTRUCTION
====================================
*/

func buildSession(tokens TokenPair, reported *SessionUser) (*Session, error) {
	if tokens.AccessToken == "" {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Decode(tokens.AccessToken)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return &Session{Tokens: tokens, User: userFromClaims(claims, reported)}, nil
}

func userFromClaims(claims *token.Claims, reported *SessionUser) SessionUser {
	u := SessionUser{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Roles: uniqueRoles(claims.Roles),
	}
	if reported != nil {
		if u.ID == "" {
			u.ID = reported.ID
		}
		if u.Email == "" {
			u.Email = reported.Email
		}
		if u.Name == "" {
			u.Name = reported.Name
		}
	}
	return u
}

func uniqueRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}
