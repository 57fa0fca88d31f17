package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the decoded token payload the platform consumes. Tokens are
// issued by the account service; this API only verifies them.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies bearer tokens and returns the decoded claims.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Claims, error)
}

// JWTVerifier validates HS256 signed tokens against a shared secret.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	parser   *jwt.Parser
}

// JWTVerifierOption customises JWTVerifier behaviour.
type JWTVerifierOption func(*JWTVerifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience requires the aud claim to contain the given audience.
func WithAudience(audience string) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.audience = strings.TrimSpace(audience)
	}
}

// NewJWTVerifier constructs a verifier for HS256 tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTVerifierOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// VerifyToken parses and validates the token, returning its claims.
func (v *JWTVerifier) VerifyToken(_ context.Context, token string) (*Claims, error) {
	if v == nil {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if v.audience != "" && !claims.RegisteredClaims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}
	return claims, nil
}
