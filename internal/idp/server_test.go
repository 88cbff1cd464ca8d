package idp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/token"
)

func TestServerLoginIssuesTokens(t *testing.T) {
	env := newTestIDP(t, nil)
	ctx := context.Background()

	tokens, err := env.server.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tokens.RefreshToken == "" || tokens.User.ID != env.user.ID {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if !tokens.ExpiresAt.Equal(testEpoch.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", tokens.ExpiresAt)
	}

	claims, ok := token.Decode(tokens.AccessToken)
	if !ok || claims.Subject != env.user.ID || claims.Email != testEmail {
		t.Fatalf("unexpected access claims %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "user" {
		t.Fatalf("unexpected roles %v", claims.Roles)
	}

	if _, err := env.server.Login(ctx, testEmail, "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestServerRefreshRotatesAndDetectsReuse(t *testing.T) {
	env := newTestIDP(t, nil)
	ctx := context.Background()

	first, err := env.server.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.clock.Advance(10 * time.Minute)
	second, err := env.server.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == first.AccessToken {
		t.Fatal("refresh must rotate both tokens")
	}
	if !second.ExpiresAt.Equal(testEpoch.Add(25 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", second.ExpiresAt)
	}

	if _, err := env.server.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("expected ErrRefreshReused, got %v", err)
	}
	if _, err := env.server.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("reuse must revoke the family, got %v", err)
	}
}

func TestServerRefreshCarriesCurrentRoles(t *testing.T) {
	env := newTestIDP(t, nil)
	ctx := context.Background()

	tokens, _ := env.server.Login(ctx, testEmail, testPassword)
	env.dir.SetRoles(env.user.ID, "user", "admin")

	next, err := env.server.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, _ := token.Decode(next.AccessToken)
	if len(claims.Roles) != 2 || claims.Roles[1] != "admin" {
		t.Fatalf("expected updated roles, got %v", claims.Roles)
	}
}

func TestServerRefreshFamilyExpires(t *testing.T) {
	env := newTestIDP(t, func(c *Config) { c.RefreshTTL = time.Hour })
	ctx := context.Background()

	tokens, _ := env.server.Login(ctx, testEmail, testPassword)
	env.clock.Advance(time.Hour)
	if _, err := env.server.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestServerLogoutRevokesFamily(t *testing.T) {
	env := newTestIDP(t, nil)
	ctx := context.Background()

	tokens, _ := env.server.Login(ctx, testEmail, testPassword)
	if err := env.server.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := env.server.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("Logout of a malformed token must be ignored: %v", err)
	}
	if _, err := env.server.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestServerVerify(t *testing.T) {
	env := newTestIDP(t, nil)
	tokens, _ := env.server.Login(context.Background(), testEmail, testPassword)

	u, err := env.server.Verify(tokens.AccessToken)
	if err != nil || u.ID != env.user.ID {
		t.Fatalf("Verify: %+v %v", u, err)
	}

	env.clock.Advance(16 * time.Minute)
	if _, err := env.server.Verify(tokens.AccessToken); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected missing issuer error")
	}
}
