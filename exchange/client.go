package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"go.uber.org/zap"
)

const (
	defaultUserAgent = "gosession/1"
	defaultTimeout   = 15 * time.Second
	maxBodyBytes     = 1 << 20
)

// Paths are the endpoint paths relative to the base URL.
type Paths struct {
	Login   string
	Refresh string
	Logout  string
}

// DefaultPaths returns /auth/login, /auth/refresh and /auth/logout.
func DefaultPaths() Paths {
	return Paths{Login: "/auth/login", Refresh: "/auth/refresh", Logout: "/auth/logout"}
}

// Config wires the base URL and transport of a Client.
type Config struct {
	BaseURL string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client
	UserAgent  string
	// Paths overrides individual endpoint paths; empty fields keep the defaults.
	Paths  Paths
	Logger *zap.Logger
}

// Client talks to the identity backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	paths      Paths
	logger     *zap.Logger
}

var _ goSession.Exchanger = (*Client)(nil)

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	normalized, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    normalized,
		httpClient: cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
		paths:      DefaultPaths(),
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if cfg.Paths.Login != "" {
		c.paths.Login = cfg.Paths.Login
	}
	if cfg.Paths.Refresh != "" {
		c.paths.Refresh = cfg.Paths.Refresh
	}
	if cfg.Paths.Logout != "" {
		c.paths.Logout = cfg.Paths.Logout
	}
	return c, nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("exchange: base URL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("exchange: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("exchange: base URL scheme must be http or https")
	}
	if u.Host == "" {
		return "", errors.New("exchange: base URL missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return strings.TrimSuffix(u.String(), "/"), nil
}

// Login implements goSession.Exchanger.
func (c *Client) Login(ctx context.Context, email, password string) (*goSession.Grant, error) {
	var resp tokenResponse
	if err := c.call(ctx, "login", c.paths.Login, "", map[string]string{"email": email, "password": password}, &resp); err != nil {
		return nil, err
	}
	return resp.grant("login")
}

// Refresh implements goSession.Exchanger.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*goSession.Grant, error) {
	var resp tokenResponse
	if err := c.call(ctx, "refresh", c.paths.Refresh, "", map[string]string{"refreshToken": refreshToken}, &resp); err != nil {
		return nil, err
	}
	return resp.grant("refresh")
}

// Logout implements goSession.Exchanger. The access token is sent as a bearer credential.
func (c *Client) Logout(ctx context.Context, tokens goSession.TokenPair) error {
	return c.call(ctx, "logout", c.paths.Logout, tokens.AccessToken, map[string]string{"refreshToken": tokens.RefreshToken}, nil)
}

func (c *Client) call(ctx context.Context, op, path, bearer string, payload, out any) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("exchange transport failure", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", goSession.ErrExchangeUnavailable, op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("exchange",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return decodeAPIError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", goSession.ErrExchangeRejected, op, err)
	}
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

/*
====================================
WIRE NORMALIZATION
====================================
*/

type tokenResponse struct {
	AccessToken       string         `json:"accessToken"`
	AccessTokenSnake  string         `json:"access_token"`
	RefreshToken      string         `json:"refreshToken"`
	RefreshTokenSnake string         `json:"refresh_token"`
	User              map[string]any `json:"user"`
}

func (r tokenResponse) grant(op string) (*goSession.Grant, error) {
	access := firstNonEmpty(r.AccessToken, r.AccessTokenSnake)
	if access == "" {
		return nil, fmt.Errorf("%w: %s: response carries no access token", goSession.ErrExchangeRejected, op)
	}
	return &goSession.Grant{
		Tokens: goSession.TokenPair{
			AccessToken:  access,
			RefreshToken: firstNonEmpty(r.RefreshToken, r.RefreshTokenSnake),
		},
		User: normalizeUser(r.User),
	}, nil
}

// normalizeUser reads the user object of a response. Numeric ids are rendered in decimal;
// name falls back to full_name and then username.
func normalizeUser(raw map[string]any) *goSession.SessionUser {
	if len(raw) == 0 {
		return nil
	}
	u := &goSession.SessionUser{
		ID:    scalarString(raw["id"]),
		Email: scalarString(raw["email"]),
		Name:  firstNonEmpty(scalarString(raw["name"]), scalarString(raw["full_name"]), scalarString(raw["fullName"]), scalarString(raw["username"])),
		Roles: []string{},
	}
	switch roles := raw["roles"].(type) {
	case []any:
		for _, r := range roles {
			if s := scalarString(r); s != "" {
				u.Roles = append(u.Roles, s)
			}
		}
	case string:
		if roles != "" {
			u.Roles = append(u.Roles, roles)
		}
	}
	if u.ID == "" && u.Email == "" && u.Name == "" && len(u.Roles) == 0 {
		return nil
	}
	return u
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
