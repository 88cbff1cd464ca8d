package idp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/internal/issuer"
	"github.com/MrEthical07/goSession/internal/rate"
	"go.uber.org/zap"
)

// DefaultRefreshTTL is the idle lifetime of a refresh family.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// Config wires the server's collaborators.
type Config struct {
	Issuer    *issuer.Issuer
	Directory *Directory
	// Families defaults to an in-memory store.
	Families FamilyStore
	// Limiter throttles login attempts per client IP; nil disables throttling.
	Limiter *rate.Limiter
	// RefreshTTL defaults to DefaultRefreshTTL.
	RefreshTTL time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

// Server issues, rotates and revokes tokens for the accounts of a Directory.
type Server struct {
	issuer     *issuer.Issuer
	directory  *Directory
	families   FamilyStore
	limiter    *rate.Limiter
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// Tokens is the result of Login and Refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// NewServer validates cfg and returns a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Issuer == nil {
		return nil, errors.New("idp: issuer is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("idp: directory is required")
	}
	if cfg.RefreshTTL < 0 {
		return nil, errors.New("idp: refresh ttl must be >= 0")
	}
	s := &Server{
		issuer:     cfg.Issuer,
		directory:  cfg.Directory,
		families:   cfg.Families,
		limiter:    cfg.Limiter,
		refreshTTL: cfg.RefreshTTL,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if s.families == nil {
		s.families = NewMemoryFamilies()
	}
	if s.refreshTTL == 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Directory returns the account directory of s.
func (s *Server) Directory() *Directory {
	return s.directory
}

// Login authenticates email and password and opens a refresh family.
func (s *Server) Login(ctx context.Context, email, password string) (*Tokens, error) {
	user, err := s.directory.Authenticate(email, password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("email", normalizeEmail(email)))
		return nil, err
	}

	id, err := newFamilyID()
	if err != nil {
		return nil, err
	}
	refresh, hash, err := mintRefreshToken(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	family := Family{ID: familyKey(id), UserID: user.ID, Hash: hash, ExpiresAt: now.Add(s.refreshTTL)}
	if err := s.families.Create(ctx, family, now); err != nil {
		return nil, err
	}

	access, exp, err := s.issue(user)
	if err != nil {
		_ = s.families.Revoke(ctx, family.ID)
		return nil, err
	}
	s.logger.Debug("login", zap.String("user_id", user.ID))
	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp, User: user}, nil
}

// Refresh rotates refreshToken and issues a new access token carrying the account's current
// roles.
func (s *Server) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	family, presented, err := parseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	id := familyKey(family)
	refresh, next, err := mintRefreshToken(family)
	if err != nil {
		return nil, err
	}

	userID, err := s.families.Rotate(ctx, id, presented, next, s.now(), s.refreshTTL)
	if err != nil {
		if errors.Is(err, ErrRefreshReused) {
			s.logger.Warn("refresh token reuse, family revoked", zap.String("family", id))
		}
		return nil, err
	}

	user, ok := s.directory.Lookup(userID)
	if !ok {
		_ = s.families.Revoke(ctx, id)
		return nil, fmt.Errorf("%w: account removed", ErrRefreshInvalid)
	}
	access, exp, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("refresh", zap.String("user_id", user.ID))
	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp, User: user}, nil
}

// Logout revokes the family of refreshToken. Malformed or unknown tokens are ignored.
func (s *Server) Logout(ctx context.Context, refreshToken string) error {
	family, _, err := parseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	return s.families.Revoke(ctx, familyKey(family))
}

// Verify checks an access token and returns the account it names.
func (s *Server) Verify(accessToken string) (User, error) {
	claims, err := s.issuer.Parse(accessToken)
	if err != nil {
		return User{}, err
	}
	user, ok := s.directory.Lookup(claims.Subject)
	if !ok {
		return User{}, issuer.ErrInvalidToken
	}
	return user, nil
}

func (s *Server) issue(u User) (string, time.Time, error) {
	return s.issuer.Issue(issuer.Subject{ID: u.ID, Email: u.Email, Name: u.Name, Roles: u.Roles})
}
