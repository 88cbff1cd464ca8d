package goSession

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/vault"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-storage-secret"

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

/*
====================================
FAKE CLOCK
====================================
*/

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and runs due callbacks synchronously, in due order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the fire times of timers that are neither stopped nor fired.
func (c *fakeClock) Pending() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Time
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at)
		}
	}
	return out
}

/*
====================================
FAKE EXCHANGER
====================================
*/

type fakeExchanger struct {
	mu sync.Mutex

	loginGrant  *Grant
	loginErr    error
	refreshFn   func(refreshToken string) (*Grant, error)
	logoutErr   error
	refreshGate chan struct{}
	refreshSeen chan string

	logins    int
	refreshes int
	logouts   []TokenPair
}

func (f *fakeExchanger) Login(_ context.Context, _, _ string) (*Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return f.loginGrant, f.loginErr
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	f.mu.Lock()
	f.refreshes++
	fn, gate, seen := f.refreshFn, f.refreshGate, f.refreshSeen
	f.mu.Unlock()

	if seen != nil {
		seen <- refreshToken
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn == nil {
		return nil, errors.New("refresh not configured")
	}
	return fn(refreshToken)
}

func (f *fakeExchanger) Logout(_ context.Context, tokens TokenPair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, tokens)
	return f.logoutErr
}

func (f *fakeExchanger) counts() (logins, refreshes, logouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.refreshes, len(f.logouts)
}

/*
====================================
TOKENS AND MANAGERS
====================================
*/

// accessToken signs a token for sub. A zero exp produces a token without expiry.
func accessToken(t *testing.T, sub string, roles []string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"name":  "User " + sub,
		"roles": roles,
		"iat":   testEpoch.Unix(),
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("issuer-secret"))
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return tok
}

func grantFor(t *testing.T, sub string, exp time.Time, refresh string) *Grant {
	return &Grant{Tokens: TokenPair{
		AccessToken:  accessToken(t, sub, []string{"user"}, exp),
		RefreshToken: refresh,
	}}
}

type testEnv struct {
	manager  *Manager
	exchange *fakeExchanger
	clock    *fakeClock
	space    *vault.MemorySpace
	backend  vault.Backend
}

func newTestEnv(t *testing.T, space *vault.MemorySpace, clock *fakeClock) *testEnv {
	t.Helper()
	if space == nil {
		space = vault.NewMemorySpace()
	}
	if clock == nil {
		clock = newFakeClock()
	}
	env := &testEnv{
		exchange: &fakeExchanger{},
		clock:    clock,
		space:    space,
		backend:  space.Open(),
	}
	env.manager = env.build(t, env.backend)
	return env
}

func (env *testEnv) build(t *testing.T, backend vault.Backend) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Storage.Secret = testSecret

	m, err := New().
		WithConfig(cfg).
		WithExchanger(env.exchange).
		WithBackend(backend).
		WithClock(env.clock).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func (env *testEnv) storeHas(t *testing.T) bool {
	t.Helper()
	store, err := vault.NewStore(env.space.Open(), testSecret)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store.Has(context.Background(), DefaultStorageKey)
}

func (env *testEnv) login(t *testing.T, grant *Grant, remember bool) Snapshot {
	t.Helper()
	env.exchange.mu.Lock()
	env.exchange.loginGrant, env.exchange.loginErr = grant, nil
	env.exchange.mu.Unlock()

	snap, err := env.manager.Login(context.Background(), Credentials{
		Email:    "alice@example.com",
		Password: "pw",
		Remember: remember,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return snap
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func record(m *Manager) *eventRecorder {
	r := &eventRecorder{}
	m.Subscribe(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *eventRecorder) last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
