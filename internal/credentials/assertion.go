package credentials

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AssertionLifetime is how long a signed assertion stays valid.
const AssertionLifetime = time.Hour

// Assertion is the JWT a service account presents to the token endpoint.
type Assertion struct {
	Issuer    string
	Scope     string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewAssertion builds an assertion issued at now and valid for AssertionLifetime.
func NewAssertion(issuer, scope, audience string, now time.Time) Assertion {
	return Assertion{
		Issuer:    issuer,
		Scope:     scope,
		Audience:  audience,
		IssuedAt:  now,
		ExpiresAt: now.Add(AssertionLifetime),
	}
}

// assertionClaims fixes the claim set and its field order on the wire.
// aud is a plain string; the token endpoint does not accept an array.
type assertionClaims struct {
	Issuer    string `json:"iss"`
	Scope     string `json:"scope"`
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

func (c assertionClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c assertionClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (assertionClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c assertionClaims) GetIssuer() (string, error) { return c.Issuer, nil }

func (assertionClaims) GetSubject() (string, error) { return "", nil }

func (c assertionClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

func (a Assertion) token(keyID string) *jwt.Token {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, assertionClaims{
		Issuer:    a.Issuer,
		Scope:     a.Scope,
		Audience:  a.Audience,
		ExpiresAt: a.ExpiresAt.Unix(),
		IssuedAt:  a.IssuedAt.Unix(),
	})

	if keyID != "" {
		token.Header["kid"] = keyID
	}

	return token
}

// SigningString returns the base64url header.claims pair that gets signed.
func (a Assertion) SigningString(keyID string) (string, error) {
	return a.token(keyID).SigningString()
}

// Sign returns the compact RS256-signed assertion.
func (a Assertion) Sign(key *rsa.PrivateKey, keyID string) (string, error) {
	signed, err := a.token(keyID).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	return signed, nil
}
