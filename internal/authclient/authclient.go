// Package authclient mints the short-lived service-identity bearer
// tokens the Edge Gateway attaches to its outbound calls to the
// Inference Gateway. Paired with internal/auth, which validates these
// tokens on the Inference Gateway side.
package authclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds how long a minted service token stays valid.
const DefaultTokenTTL = 2 * time.Minute

// TokenIssuer mints service-identity bearer tokens for a fixed subject
// and signing secret.
type TokenIssuer struct {
	secret  []byte
	subject string
	ttl     time.Duration
}

// NewTokenIssuer builds a TokenIssuer. subject identifies the calling
// service (e.g. "edge-gateway") in the minted token's claims.
func NewTokenIssuer(secret, subject string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), subject: subject, ttl: DefaultTokenTTL}
}

// Mint returns a signed, short-lived bearer token.
func (i *TokenIssuer) Mint() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   i.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}
