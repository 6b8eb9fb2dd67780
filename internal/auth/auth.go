// Package auth is the seam to the external credential subsystem. The
// signaling core consults it exactly once, before the websocket upgrade,
// and trusts the resolved user id afterwards.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// Authenticator resolves the optional authenticated user id for an upgrade
// request. An empty id with a nil error means an anonymous participant.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// Claims are the claims inside the externally issued session cookie.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// CookieAuthenticator validates an HMAC-signed JWT carried in a session
// cookie. A missing cookie is not an error; the connection proceeds
// anonymously. A present but invalid cookie rejects the upgrade.
type CookieAuthenticator struct {
	secret     []byte
	cookieName string
}

func NewCookieAuthenticator(secret, cookieName string) *CookieAuthenticator {
	return &CookieAuthenticator{secret: []byte(secret), cookieName: cookieName}
}

func (a *CookieAuthenticator) Authenticate(r *http.Request) (string, error) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		return "", nil
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// Anonymous admits every connection without a user id. Used when no JWT
// secret is configured.
type Anonymous struct{}

func (Anonymous) Authenticate(*http.Request) (string, error) { return "", nil }
