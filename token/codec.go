package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded, unverified payload of an access token.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Raw holds every payload field, including ones this package does not interpret.
	// Numbers are json.Number.
	Raw map[string]any
}

// HasExpiry reports whether the token carries an exp claim.
func (c *Claims) HasExpiry() bool {
	return c != nil && !c.ExpiresAt.IsZero()
}

// ExpiresAtMillis returns the expiry as Unix epoch milliseconds.
func (c *Claims) ExpiresAtMillis() (int64, bool) {
	if !c.HasExpiry() {
		return 0, false
	}
	return c.ExpiresAt.UnixMilli(), true
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode splits token into its three segments and decodes the payload segment.
//
// It returns (nil, false) when the segment count is not three, the payload is not base64url,
// or the decoded payload is not a JSON object. The signature is never checked.
func Decode(token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, false
	}

	raw, err := decodeObject(payload)
	if err != nil {
		return nil, false
	}

	claims, err := claimsFromMap(raw)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func decodeObject(payload []byte) (jwt.MapClaims, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw jwt.MapClaims
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("payload is not an object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after payload")
	}
	return raw, nil
}

func claimsFromMap(raw jwt.MapClaims) (*Claims, error) {
	claims := &Claims{
		Subject: stringClaim(raw["sub"]),
		Email:   stringClaim(raw["email"]),
		Name:    stringClaim(raw["name"]),
		Roles:   rolesClaim(raw),
		Raw:     map[string]any(raw),
	}

	exp, err := numericClaim(raw, "exp", raw.GetExpirationTime)
	if err != nil {
		return nil, err
	}
	claims.ExpiresAt = exp

	iat, err := numericClaim(raw, "iat", raw.GetIssuedAt)
	if err != nil {
		return nil, err
	}
	claims.IssuedAt = iat

	return claims, nil
}

// numericClaim treats a missing, null or zero date claim as absent (zero time).
func numericClaim(raw jwt.MapClaims, key string, get func() (*jwt.NumericDate, error)) (time.Time, error) {
	if v, ok := raw[key]; !ok || v == nil {
		return time.Time{}, nil
	}
	date, err := get()
	if err != nil {
		return time.Time{}, err
	}
	if date == nil || date.Time.Equal(time.Unix(0, 0)) {
		return time.Time{}, nil
	}
	return date.Time, nil
}

func stringClaim(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

// rolesClaim always returns a non-nil slice. A scalar "roles" becomes a one-element list and
// a singular "role" claim is honoured when "roles" is missing.
func rolesClaim(raw jwt.MapClaims) []string {
	v, ok := raw["roles"]
	if !ok {
		v = raw["role"]
	}

	roles := []string{}
	switch r := v.(type) {
	case string:
		if r != "" {
			roles = append(roles, r)
		}
	case []any:
		for _, item := range r {
			if s, ok := item.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
	}
	return roles
}

// ExpiresAt returns the expiry of token, if it decodes and carries one.
func ExpiresAt(token string) (time.Time, bool) {
	claims, ok := Decode(token)
	if !ok || !claims.HasExpiry() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

// IsExpired reports whether token is expired at the current time, treating it as expired skew
// early. Tokens without an expiry (or that cannot be decoded) are never expired here; callers
// must treat an undecodable token as untrusted through [Decode].
func IsExpired(token string, skew time.Duration) bool {
	return IsExpiredAt(token, skew, time.Now())
}

// IsExpiredAt is [IsExpired] evaluated at now.
func IsExpiredAt(token string, skew time.Duration, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !now.Before(exp.Add(-skew))
}

// RefreshLeadTime returns how long to wait before renewing token so that renewal happens safety
// before expiry. The result is clamped to zero when renewal is already due. ok is false when the
// token has no expiry.
func RefreshLeadTime(token string, safety time.Duration) (time.Duration, bool) {
	return RefreshLeadTimeAt(token, safety, time.Now())
}

// RefreshLeadTimeAt is [RefreshLeadTime] evaluated at now.
func RefreshLeadTimeAt(token string, safety time.Duration, now time.Time) (time.Duration, bool) {
	exp, ok := ExpiresAt(token)
	if !ok {
		return 0, false
	}
	delay := exp.Sub(now) - safety
	if delay <= 0 {
		return 0, true
	}
	return delay, true
}
