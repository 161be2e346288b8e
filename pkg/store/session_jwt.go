package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 30 * time.Minute

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// JWTOptions configures JWT claim validation behavior.
type JWTOptions struct {
	Issuer string
	Leeway time.Duration
	// Now overrides the clock used for issuing and validating tokens.
	Now func() time.Time
}

// JWTSessionStore issues and validates HS256 JWT tokens. It is stateless:
// a token stays valid until it expires.
type JWTSessionStore struct {
	secret []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewJWTSessionStore builds a stateless HS256 session store.
func NewJWTSessionStore(secret string, ttl time.Duration, opts JWTOptions) (*JWTSessionStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JWTSessionStore{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: strings.TrimSpace(opts.Issuer),
		leeway: opts.Leeway,
		now:    now,
	}, nil
}

// TTL returns how long issued tokens remain valid.
func (s *JWTSessionStore) TTL() time.Duration {
	return s.ttl
}

// NewSession creates a signed JWT whose subject is the given value.
func (s *JWTSessionStore) NewSession(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject required")
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// SubjectFromToken validates a JWT and returns its subject.
// Every failure wraps ErrInvalidToken.
func (s *JWTSessionStore) SubjectFromToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, parserOptions...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return subject, nil
}

// DeleteSession is a no-op for stateless JWT; provided for interface parity.
func (s *JWTSessionStore) DeleteSession(_ string) error {
	return nil
}
