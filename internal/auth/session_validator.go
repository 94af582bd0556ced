package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrMissingSessionToken indicates the request carried no access token.
var ErrMissingSessionToken = errors.New("session validator: token required")

const bearerPrefix = "bearer "

// SessionValidator extracts access tokens from requests, either from the Authorization header or
// from a cookie, and validates them with the issuer.
type SessionValidator struct {
	issuer     *TokenIssuer
	cookieName string
}

// NewSessionValidator constructs a validator. An empty cookieName disables cookie lookup.
func NewSessionValidator(issuer *TokenIssuer, cookieName string) (*SessionValidator, error) {
	if issuer == nil {
		return nil, errors.New("session validator: token issuer required")
	}
	return &SessionValidator{issuer: issuer, cookieName: strings.TrimSpace(cookieName)}, nil
}

// CookieName returns the cookie consulted when no bearer header is present.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateRequest returns the claims of the request's access token.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return v.issuer.ValidateToken(header[len(bearerPrefix):])
	}
	if v.cookieName != "" {
		if cookie, err := r.Cookie(v.cookieName); err == nil && cookie.Value != "" {
			return v.issuer.ValidateToken(cookie.Value)
		}
	}
	return SessionClaims{}, ErrMissingSessionToken
}
