// Package auth issues and verifies the bearer tokens that identify postbox users.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret     = errors.New("token secret is not configured")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload. Extra carries caller supplied fields and never overrides
// the username or registered claims.
type Claims struct {
	Username string         `json:"username"`
	Extra    map[string]any `json:"extra,omitempty"`
	jwt.RegisteredClaims
}

// Options configures token signing.
type Options struct {
	Algorithm string
	Lifetime  time.Duration
	Issuer    string
}

// Tokens signs and verifies HMAC tokens with a shared secret.
type Tokens struct {
	secret   []byte
	method   jwt.SigningMethod
	lifetime time.Duration
	issuer   string
	now      func() time.Time
}

// NewTokens creates a signer for secret. Only HMAC algorithms are supported.
func NewTokens(secret []byte, opts Options) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}

	method, ok := jwt.GetSigningMethod(opts.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", opts.Algorithm)
	}

	return &Tokens{
		secret:   secret,
		method:   method,
		lifetime: opts.Lifetime,
		issuer:   opts.Issuer,
		now:      time.Now,
	}, nil
}

// Issue returns a signed token for username.
func (t *Tokens) Issue(username string, extra map[string]any) (string, error) {
	if username == "" {
		return "", fmt.Errorf("issue token: empty username")
	}

	now := t.now()
	claims := Claims{
		Username: username,
		Extra:    extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if t.lifetime > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.lifetime))
	}

	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its claims. Any failure wraps ErrInvalidToken.
func (t *Tokens) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Username == "" {
		return nil, fmt.Errorf("%w: missing username", ErrInvalidToken)
	}
	return claims, nil
}
