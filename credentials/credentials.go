// Package credentials holds the access/refresh token pair identifying an
// authenticated session, and the repository contract for persisting it.
package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the token pair for the current session. At most one
// credential is current at a time; it is owned by session.Manager and only
// ever replaced wholesale, never field-by-field.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	SubjectID    string    `json:"subjectId"`
	Username     string    `json:"username"`
}

// Expired reports whether the access token should be considered stale at
// the given instant. An unknown expiry counts as expired so that a refresh
// is attempted before the token is ever presented.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt)
}

// DeriveExpiry fills ExpiresAt from the access token's exp claim when the
// server response did not carry an explicit expiry. The token is parsed
// unverified: the client holds no signing key, and the value is only used
// for proactive refresh scheduling, never for trust decisions.
func (c *Credential) DeriveExpiry() {
	if c == nil || c.AccessToken == "" || !c.ExpiresAt.IsZero() {
		return
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.AccessToken, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	c.ExpiresAt = exp.Time
}
