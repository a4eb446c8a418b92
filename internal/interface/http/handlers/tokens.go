package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/domain/shared"

	"github.com/golang-jwt/jwt/v4"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEARER TOKENS
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidToken is returned for missing, expired or tampered tokens.
var ErrInvalidToken = shared.NewDomainError("auth", "Verify", shared.ErrUnauthorized, "invalid or expired token")

// Claims carried by an access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// Issue returns a signed token for the actor and its expiry.
func (t *TokenIssuer) Issue(actor shared.Actor) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)

	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses the token and returns the actor it was issued for.
func (t *TokenIssuer) Verify(raw string) (shared.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return shared.Actor{}, ErrInvalidToken
	}

	role := shared.Role(claims.Role)
	if claims.Subject == "" || !role.IsValid() {
		return shared.Actor{}, ErrInvalidToken
	}
	return shared.Actor{UserID: claims.Subject, Role: role}, nil
}
