package idp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newFamily(t *testing.T, userID string, expires time.Time) (Family, string, [familyIDSize]byte) {
	t.Helper()
	id, err := newFamilyID()
	if err != nil {
		t.Fatalf("newFamilyID: %v", err)
	}
	tok, hash, err := mintRefreshToken(id)
	if err != nil {
		t.Fatalf("mintRefreshToken: %v", err)
	}
	return Family{ID: familyKey(id), UserID: userID, Hash: hash, ExpiresAt: expires}, tok, id
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	f, tok, id := newFamily(t, "u1", testEpoch)

	got, hash, err := parseRefreshToken(tok)
	if err != nil {
		t.Fatalf("parseRefreshToken: %v", err)
	}
	if got != id || hash != f.Hash {
		t.Fatal("parsed token does not match minted family")
	}

	for _, bad := range []string{"", "%%%", "c2hvcnQ"} {
		if _, _, err := parseRefreshToken(bad); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("expected ErrRefreshInvalid for %q, got %v", bad, err)
		}
	}
}

func exerciseFamilyStore(t *testing.T, store FamilyStore, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	now := testEpoch
	ttl := time.Hour

	f, _, id := newFamily(t, "u1", now.Add(ttl))
	if err := store.Create(ctx, f, now); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, next, _ := mintRefreshToken(id)
	userID, err := store.Rotate(ctx, f.ID, f.Hash, next, now, ttl)
	if err != nil || userID != "u1" {
		t.Fatalf("Rotate: %q %v", userID, err)
	}

	_, third, _ := mintRefreshToken(id)
	if _, err := store.Rotate(ctx, f.ID, f.Hash, third, now, ttl); !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("expected ErrRefreshReused for superseded hash, got %v", err)
	}
	if _, err := store.Rotate(ctx, f.ID, next, third, now, ttl); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("reuse must revoke the family, got %v", err)
	}

	g, _, gid := newFamily(t, "u2", now.Add(ttl))
	if err := store.Create(ctx, g, now); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Revoke(ctx, g.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := store.Revoke(ctx, g.ID); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	_, gnext, _ := mintRefreshToken(gid)
	if _, err := store.Rotate(ctx, g.ID, g.Hash, gnext, now, ttl); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected revoked family to be invalid, got %v", err)
	}

	h, _, hid := newFamily(t, "u3", now.Add(ttl))
	if err := store.Create(ctx, h, now); err != nil {
		t.Fatalf("Create: %v", err)
	}
	expire(ttl + time.Second)
	_, hnext, _ := mintRefreshToken(hid)
	if _, err := store.Rotate(ctx, h.ID, h.Hash, hnext, now.Add(ttl+time.Second), ttl); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected expired family to be invalid, got %v", err)
	}
}

func TestMemoryFamilies(t *testing.T) {
	store := NewMemoryFamilies()
	exerciseFamilyStore(t, store, func(time.Duration) {})
	if store.Len() != 0 {
		t.Fatalf("expected every family gone, %d left", store.Len())
	}
}

func TestRedisFamilies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exerciseFamilyStore(t, NewRedisFamilies(rdb, ""), mr.FastForward)
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys left, got %v", keys)
	}
}

func TestRedisFamiliesRotationSlidesExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisFamilies(rdb, "rf:")
	ctx := context.Background()

	f, _, id := newFamily(t, "u1", testEpoch.Add(time.Minute))
	if err := store.Create(ctx, f, testEpoch); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mr.FastForward(50 * time.Second)

	_, next, _ := mintRefreshToken(id)
	if _, err := store.Rotate(ctx, f.ID, f.Hash, next, testEpoch, time.Hour); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if ttl := mr.TTL("rf:" + f.ID); ttl != time.Hour {
		t.Fatalf("expected ttl to be extended to 1h, got %v", ttl)
	}
	if got := mr.HGet("rf:"+f.ID, "hash"); got != next.String() {
		t.Fatalf("stored hash not rotated: %q", got)
	}
}
