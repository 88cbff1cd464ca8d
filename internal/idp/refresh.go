package idp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	familyIDSize       = 16
	refreshSecretSize  = 32
	refreshTokenRawLen = familyIDSize + refreshSecretSize
)

type secretHash [sha256.Size]byte

func (h secretHash) String() string {
	return hex.EncodeToString(h[:])
}

// mintRefreshToken returns a new opaque token for family and the hash of its secret.
func mintRefreshToken(family [familyIDSize]byte) (string, secretHash, error) {
	var raw [refreshTokenRawLen]byte
	copy(raw[:familyIDSize], family[:])
	if _, err := rand.Read(raw[familyIDSize:]); err != nil {
		return "", secretHash{}, err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), sha256.Sum256(raw[familyIDSize:]), nil
}

func newFamilyID() ([familyIDSize]byte, error) {
	var id [familyIDSize]byte
	_, err := rand.Read(id[:])
	return id, err
}

// parseRefreshToken splits token into its family id and secret hash.
func parseRefreshToken(token string) ([familyIDSize]byte, secretHash, error) {
	var family [familyIDSize]byte
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenRawLen {
		return family, secretHash{}, ErrRefreshInvalid
	}
	copy(family[:], raw[:familyIDSize])
	return family, sha256.Sum256(raw[familyIDSize:]), nil
}

func familyKey(id [familyIDSize]byte) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// Family is one chain of rotated refresh tokens.
type Family struct {
	ID        string
	UserID    string
	Hash      secretHash
	ExpiresAt time.Time
}

// FamilyStore persists refresh families.
type FamilyStore interface {
	// Create stores a new family living until f.ExpiresAt.
	Create(ctx context.Context, f Family, now time.Time) error
	// Rotate replaces the current hash when presented matches it and extends the family to
	// now+ttl. A mismatch revokes the family and returns ErrRefreshReused.
	Rotate(ctx context.Context, id string, presented, next secretHash, now time.Time, ttl time.Duration) (userID string, err error)
	// Revoke deletes the family. Unknown ids are not an error.
	Revoke(ctx context.Context, id string) error
}

/*
====================================
MEMORY
====================================
*/

// MemoryFamilies keeps families in process memory.
type MemoryFamilies struct {
	mu       sync.Mutex
	families map[string]Family
}

// NewMemoryFamilies returns an empty store.
func NewMemoryFamilies() *MemoryFamilies {
	return &MemoryFamilies{families: make(map[string]Family)}
}

// Create implements [FamilyStore].
func (m *MemoryFamilies) Create(_ context.Context, f Family, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.families[f.ID] = f
	return nil
}

// Rotate implements [FamilyStore].
func (m *MemoryFamilies) Rotate(_ context.Context, id string, presented, next secretHash, now time.Time, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.families[id]
	if !ok {
		return "", ErrRefreshInvalid
	}
	if !now.Before(f.ExpiresAt) {
		delete(m.families, id)
		return "", ErrRefreshInvalid
	}
	if subtle.ConstantTimeCompare(f.Hash[:], presented[:]) != 1 {
		delete(m.families, id)
		return "", ErrRefreshReused
	}
	f.Hash = next
	f.ExpiresAt = now.Add(ttl)
	m.families[id] = f
	return f.UserID, nil
}

// Revoke implements [FamilyStore].
func (m *MemoryFamilies) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.families, id)
	return nil
}

// Len returns the number of live families.
func (m *MemoryFamilies) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.families)
}

/*
====================================
REDIS
====================================
*/

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateFamilyScript compares and swaps the family hash in one step.
var rotateFamilyScript = redis.NewScript(`
local data = redis.call("HMGET", KEYS[1], "user", "hash")
if not data[1] then
  return {0}
end
if data[2] ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return {2}
end
redis.call("HSET", KEYS[1], "hash", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {3, data[1]}
`)

// RedisFamilies keeps families as Redis hashes expiring with the family.
type RedisFamilies struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisFamilies creates a store under prefix (default "idp:rf:").
func NewRedisFamilies(client redis.UniversalClient, prefix string) *RedisFamilies {
	if prefix == "" {
		prefix = "idp:rf:"
	}
	return &RedisFamilies{redis: client, prefix: prefix}
}

func (r *RedisFamilies) key(id string) string {
	return r.prefix + id
}

// Create implements [FamilyStore].
func (r *RedisFamilies) Create(ctx context.Context, f Family, now time.Time) error {
	ttl := f.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("%w: family already expired", ErrRefreshInvalid)
	}
	_, err := r.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.key(f.ID), "user", f.UserID, "hash", f.Hash.String())
		p.PExpire(ctx, r.key(f.ID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Rotate implements [FamilyStore]. Expiry is enforced by the key TTL; now is unused.
func (r *RedisFamilies) Rotate(ctx context.Context, id string, presented, next secretHash, _ time.Time, ttl time.Duration) (string, error) {
	result, err := rotateFamilyScript.Run(ctx, r.redis, []string{r.key(id)},
		presented.String(), next.String(), ttl.Milliseconds()).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return "", fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return "", fmt.Errorf("%w: invalid rotate script status", ErrStoreUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return "", ErrRefreshInvalid
	case rotateStatusMismatch:
		return "", ErrRefreshReused
	case rotateStatusRotated:
		if len(parts) < 2 {
			return "", fmt.Errorf("%w: missing family user", ErrStoreUnavailable)
		}
		userID, ok := parts[1].(string)
		if !ok {
			return "", fmt.Errorf("%w: invalid family user", ErrStoreUnavailable)
		}
		return userID, nil
	default:
		return "", fmt.Errorf("%w: unknown rotate script status", ErrStoreUnavailable)
	}
}

// Revoke implements [FamilyStore].
func (r *RedisFamilies) Revoke(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, r.key(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
