package idp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func post(t *testing.T, h http.Handler, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	out := map[string]any{}
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %q", rr.Body.String())
		}
	}
	return rr, out
}

func TestHTTPLoginSnakeCase(t *testing.T) {
	env := newTestIDP(t, nil)
	h := env.server.Handler()

	rr, body := post(t, h, "/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, body)
	}
	for _, key := range []string{"access_token", "refresh_token", "expires_at", "user"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %q in %v", key, body)
		}
	}
	user := body["user"].(map[string]any)
	if user["email"] != testEmail {
		t.Fatalf("unexpected user %v", user)
	}
}

func TestHTTPLoginRejected(t *testing.T) {
	env := newTestIDP(t, nil)
	h := env.server.Handler()

	rr, body := post(t, h, "/auth/login", map[string]string{"email": testEmail, "password": "nope nope nope"})
	if rr.Code != http.StatusUnauthorized || body["message"] != msgInvalidCredentials {
		t.Fatalf("unexpected response %d %v", rr.Code, body)
	}

	rr, _ = post(t, h, "/auth/login", map[string]string{"email": testEmail})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing password, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestHTTPLoginRateLimited(t *testing.T) {
	env := newTestIDP(t, func(c *Config) {
		c.Limiter = memoryLimiter(t, 2)
	})
	h := env.server.Handler()
	creds := map[string]string{"email": testEmail, "password": "wrong password"}

	for i := 0; i < 2; i++ {
		if rr, _ := post(t, h, "/auth/login", creds); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
		}
	}
	rr, body := post(t, h, "/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	if rr.Code != http.StatusTooManyRequests || body["message"] != msgRateLimited {
		t.Fatalf("expected 429, got %d %v", rr.Code, body)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestHTTPRefreshCamelCase(t *testing.T) {
	env := newTestIDP(t, nil)
	h := env.server.Handler()

	_, login := post(t, h, "/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	refresh := login["refresh_token"].(string)

	rr, body := post(t, h, "/auth/refresh", map[string]string{"refreshToken": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", rr.Code, body)
	}
	if body["accessToken"] == "" || body["refreshToken"] == "" {
		t.Fatalf("expected camelCase tokens, got %v", body)
	}
	if _, snake := body["access_token"]; snake {
		t.Fatalf("refresh must not answer snake_case: %v", body)
	}

	rr, body = post(t, h, "/auth/refresh", map[string]string{"refreshToken": refresh})
	if rr.Code != http.StatusUnauthorized || body["message"] != msgSessionExpired {
		t.Fatalf("expected 401 for reused token, got %d %v", rr.Code, body)
	}
}

func TestHTTPLogoutThenRefreshFails(t *testing.T) {
	env := newTestIDP(t, nil)
	h := env.server.Handler()

	_, login := post(t, h, "/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	refresh := login["refresh_token"].(string)

	rr, _ := post(t, h, "/auth/logout", map[string]string{"refreshToken": refresh})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr, _ = post(t, h, "/auth/refresh", map[string]string{"refresh_token": refresh})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout without body must succeed, got %d", rec.Code)
	}
}

func TestHTTPMe(t *testing.T) {
	env := newTestIDP(t, nil)
	h := env.server.Handler()
	_, login := post(t, h, "/auth/login", map[string]string{"email": testEmail, "password": testPassword})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login["access_token"].(string))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var u User
	if err := json.Unmarshal(rr.Body.Bytes(), &u); err != nil || u.ID != env.user.ID {
		t.Fatalf("unexpected user %+v %v", u, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestHTTPCheckEmail(t *testing.T) {
	env := newTestIDP(t, nil)
	h := env.server.Handler()

	cases := []struct {
		query  string
		status int
		avail  bool
	}{
		{"email=" + testEmail, http.StatusOK, false},
		{"email=free%40example.com", http.StatusOK, true},
		{"email=not-an-email", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/check-email?"+tc.query, nil))
		var body map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &body)
		if rr.Code != tc.status || body["available"] != tc.avail {
			t.Fatalf("%s: got %d %v", tc.query, rr.Code, body)
		}
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "192.0.2.1:80", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.6"}, "192.0.2.1:80", "203.0.113.6"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "203.0.113.7"}, "192.0.2.1:80", "203.0.113.7"},
		{"remote addr", nil, "192.0.2.1:80", "192.0.2.1"},
		{"unknown", nil, "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
