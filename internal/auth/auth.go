// Package auth resolves bearer tokens into the principal a request acts for.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// ServicePrincipalID identifies callers that authenticate with the shared
// DOCQ_AUTH_TOKEN instead of a JWT.
const ServicePrincipalID = "service"

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for a token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims docq issues and accepts. The subject is the
// principal id.
type Claims struct {
	jwt.RegisteredClaims
	Plan string `json:"plan,omitempty"`
}

// Resolver verifies bearer tokens. With a JWT secret configured, tokens must
// be HS256 JWTs with a subject. Otherwise, if a shared token is configured,
// it must match exactly. With neither, every request resolves to the
// anonymous service principal.
type Resolver struct {
	secret      []byte
	sharedToken string
}

func NewResolver(jwtSecret, sharedToken string) *Resolver {
	return &Resolver{secret: []byte(jwtSecret), sharedToken: sharedToken}
}

// Enabled reports whether requests need a token at all.
func (r *Resolver) Enabled() bool {
	return len(r.secret) > 0 || r.sharedToken != ""
}

// Resolve maps a raw bearer token (without the "Bearer " prefix) to a principal.
func (r *Resolver) Resolve(token string) (model.Principal, error) {
	if !r.Enabled() {
		return model.Principal{ID: ServicePrincipalID}, nil
	}
	if token == "" {
		return model.Principal{}, ErrMissingToken
	}
	if len(r.secret) > 0 {
		claims, err := ValidateToken(token, r.secret)
		if err != nil {
			return model.Principal{}, err
		}
		return model.Principal{ID: claims.Subject, Plan: claims.Plan}, nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.sharedToken)) != 1 {
		return model.Principal{}, ErrInvalidToken
	}
	return model.Principal{ID: ServicePrincipalID}, nil
}

// ResolveHeader resolves an Authorization header value.
func (r *Resolver) ResolveHeader(header string) (model.Principal, error) {
	if header == "" {
		return r.Resolve("")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		if !r.Enabled() {
			return r.Resolve("")
		}
		return model.Principal{}, ErrInvalidToken
	}
	return r.Resolve(strings.TrimSpace(token))
}

// ValidateToken parses and verifies an HS256 token signed with secret.
func ValidateToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewToken signs a token for principal p. A zero expiry means the token
// does not expire.
func NewToken(secret []byte, p model.Principal, expiry time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("no JWT secret configured")
	}
	if p.ID == "" {
		return "", errors.New("principal id is required")
	}
	now := time.Now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Plan: p.Plan,
	}
	if expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
