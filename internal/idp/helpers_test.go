package idp

import (
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/issuer"
	"github.com/MrEthical07/goSession/internal/rate"
	"go.uber.org/zap/zaptest"
)

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func cheapHasherConfig() HasherConfig {
	return HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testIDP struct {
	server *Server
	dir    *Directory
	clock  *testClock
	user   User
}

const (
	testEmail    = "ann@example.com"
	testPassword = "correct horse"
)

func newTestIDP(t *testing.T, mutate func(*Config)) *testIDP {
	t.Helper()
	clock := &testClock{now: testEpoch}

	h, err := NewHasher(cheapHasherConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	dir, err := NewDirectory(h)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	user, err := dir.Add(testEmail, "Ann", testPassword, "user")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	iss, err := issuer.New(issuer.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: issuer.MethodHS256,
		PrivateKey:    []byte(strings.Repeat("s", 32)),
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("issuer.New: %v", err)
	}

	cfg := Config{
		Issuer:    iss,
		Directory: dir,
		Logger:    zaptest.NewLogger(t),
		Now:       clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testIDP{server: srv, dir: dir, clock: clock, user: user}
}

func memoryLimiter(t *testing.T, limit int) *rate.Limiter {
	t.Helper()
	l, err := rate.New(rate.NewMemoryCounter(nil), rate.Config{Limit: limit, Window: time.Minute})
	if err != nil {
		t.Fatalf("rate.New: %v", err)
	}
	return l
}
