// Package auth decodes the signed session token carried on the WebSocket
// handshake into an identity claim. The token is issued by the external
// account service; this package only verifies and reads it.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie the account service sets at login.
const SessionCookie = "token"

var (
	// ErrNoToken is returned when the handshake carries no credential.
	ErrNoToken = errors.New("no session token")
	// ErrInvalidToken is returned when the credential fails verification.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrTokenExpired is returned when the credential is past its expiry.
	ErrTokenExpired = errors.New("session token expired")
)

// Identity is the claim set decoded from a session token. It is immutable
// for the lifetime of the connection that presented it.
type Identity struct {
	ID        int64
	Username  string
	Email     string
	FullName  string
	PhotoPath string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// DecodeSessionToken verifies tokenStr against secret and extracts the
// identity claim. Expiry is enforced by the parser.
func DecodeSessionToken(tokenStr, secret string) (*Identity, error) {
	if tokenStr == "" {
		return nil, ErrNoToken
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	id := toInt64(claims["id"])
	if id == 0 {
		return nil, ErrInvalidToken
	}
	return &Identity{
		ID:        id,
		Username:  toString(claims["username"]),
		Email:     toString(claims["email"]),
		FullName:  toString(claims["full_name"]),
		PhotoPath: toString(claims["profile_photo_path"]),
		IssuedAt:  toTime(claims["iat"]),
		ExpiresAt: toTime(claims["exp"]),
	}, nil
}

// TokenFromRequest extracts the session token from the request, preferring
// the session cookie and falling back to a bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func toTime(v interface{}) time.Time {
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0)
	case int64:
		return time.Unix(t, 0)
	}
	return time.Time{}
}
