// Package auth validates and issues HS256 bearer tokens for the placement API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrMissingSubject is returned when a valid token carries no subject
	ErrMissingSubject = errors.New("token has no subject")
)

// MinSecretLength is the shortest HMAC secret accepted.
const MinSecretLength = 32

// Claims are the registered claims plus the scopes a caller was granted.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// Principal is the authenticated caller extracted from a valid token.
type Principal struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

// HMACValidator checks HS256 tokens against a shared secret. Issuer and audience
// are only enforced when configured.
type HMACValidator struct {
	secret   []byte
	issuer   string
	audience string
}

func NewHMACValidator(secret, issuer, audience string) (*HMACValidator, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	return &HMACValidator{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// ValidateToken parses tokenString and returns its principal.
func (v *HMACValidator) ValidateToken(_ context.Context, tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	p := &Principal{Subject: claims.Subject, Scopes: claims.Scopes}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// IssueToken signs a token for subject valid for ttl. Used by operators and tests.
func (v *HMACValidator) IssueToken(subject string, ttl time.Duration, scopes ...string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    v.issuer,
		},
		Scopes: scopes,
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
