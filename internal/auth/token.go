package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when a token fails parsing or validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Resolver maps a bearer token to a principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

// Claims is the JWT payload.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTResolver creates a resolver. When issuer is non-empty, tokens must
// carry a matching iss claim.
func NewJWTResolver(secret []byte, issuer string) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &JWTResolver{
		secret: secret,
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Resolve implements Resolver.
func (r *JWTResolver) Resolve(ctx context.Context, tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := r.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{
		ID:    claims.Subject,
		Name:  claims.Name,
		Roles: claims.Roles,
	}, nil
}

// Sign issues a token for p that expires after ttl.
func (r *JWTResolver) Sign(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  p.Name,
		Roles: p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
