package idp

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/rate"
	"go.uber.org/zap"
)

const (
	msgInvalidCredentials = "Invalid email or password."
	msgLoginFailed        = "Unable to sign in. Please try again."
	msgRateLimited        = "Too many login attempts. Please wait and try again."
	msgSessionExpired     = "Session has expired. Please sign in again."
	msgBadRequest         = "Malformed request body."
	maxBodyBytes          = 1 << 16
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

type refreshRequest struct {
	RefreshToken      string `json:"refreshToken"`
	RefreshTokenSnake string `json:"refresh_token"`
}

func (r refreshRequest) token() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	return r.RefreshTokenSnake
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Handler returns the HTTP surface of s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/me", s.handleMe)
	mux.HandleFunc("GET /auth/check-email", s.handleCheckEmail)
	return mux
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		res, err := s.limiter.Allow(r.Context(), rate.LoginKey(ClientIP(r)))
		if err != nil {
			s.logger.Warn("login limiter unavailable", zap.Error(err))
		} else if !res.Allowed {
			secs := int(res.RetryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, http.StatusTooManyRequests, messageResponse{Message: msgRateLimited})
			return
		}
	}

	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: msgInvalidCredentials})
		return
	}

	tokens, err := s.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: msgInvalidCredentials})
		return
	case err != nil:
		s.logger.Error("login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgLoginFailed})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    tokens.ExpiresAt.Unix(),
		User:         tokens.User,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tokens, err := s.Refresh(r.Context(), req.token())
	switch {
	case errors.Is(err, ErrRefreshInvalid), errors.Is(err, ErrRefreshReused):
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: msgSessionExpired})
		return
	case err != nil:
		s.logger.Error("refresh failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgSessionExpired})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err := s.Logout(r.Context(), req.token()); err != nil {
		s.logger.Warn("logout revoke failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearerToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: msgSessionExpired})
		return
	}
	user, err := s.Verify(raw)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: msgSessionExpired})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if _, err := mail.ParseAddress(email); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"available": false, "message": "Invalid email"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": s.directory.Available(email)})
}

// ClientIP returns the first address of X-Forwarded-For, then X-Real-IP, then
// CF-Connecting-IP, then the remote address host, or "unknown".
func ClientIP(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	for _, h := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "unknown"
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgBadRequest})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
