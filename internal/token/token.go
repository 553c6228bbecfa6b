package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minSecretBytes is the smallest decoded signing key the codec accepts.
// HS256 keys below the hash output size make signatures predictable.
const minSecretBytes = 32

var (
	// ErrMalformed is returned when a token is not a well-formed compact JWT.
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature does not match the
	// process-wide secret.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned when the token's expiry has passed.
	ErrExpired = errors.New("token expired")
)

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Codec mints and verifies HS256 bearer tokens. It is stateless and safe for
// concurrent use; the secret and TTL are fixed at construction.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec builds a Codec from a base64-encoded secret and a token TTL.
// It fails fast on secrets below the minimum size and non-positive TTLs so
// misconfiguration surfaces at startup, not at first mint.
func NewCodec(secretB64 string, ttl time.Duration) (*Codec, error) {
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return nil, fmt.Errorf("jwt secret is not valid base64: %w", err)
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret too short: %d bytes, need at least %d", len(secret), minSecretBytes)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("jwt expiration must be positive, got %s", ttl)
	}
	return &Codec{secret: secret, ttl: ttl}, nil
}

// TTL returns the configured token time-to-live.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Mint produces a signed token for the subject. Extra claims are merged into
// the payload, but the reserved sub/iat/exp claims are always set by the
// codec and cannot be overridden by the caller.
func (c *Codec) Mint(subject string, extra map[string]any) (string, Claims, error) {
	if subject == "" {
		return "", Claims{}, errors.New("token subject is required")
	}

	now := time.Now()
	expiresAt := now.Add(c.ttl)

	mapClaims := jwt.MapClaims{}
	for key, value := range extra {
		mapClaims[key] = value
	}
	mapClaims["sub"] = subject
	mapClaims["iat"] = jwt.NewNumericDate(now)
	mapClaims["exp"] = jwt.NewNumericDate(expiresAt)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, Claims{
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Extra:     extra,
	}, nil
}

// Verify parses the token, checks the signature against the process-wide
// secret and rejects expired tokens. Failures are reported as one of
// ErrMalformed, ErrInvalidSignature or ErrExpired.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	mapClaims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, mapClaims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}
	if !parsed.Valid {
		return Claims{}, ErrMalformed
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return Claims{}, ErrMalformed
	}

	claims := Claims{Subject: subject}
	if issuedAt, err := mapClaims.GetIssuedAt(); err == nil && issuedAt != nil {
		claims.IssuedAt = issuedAt.Time
	}
	if expiresAt, err := mapClaims.GetExpirationTime(); err == nil && expiresAt != nil {
		claims.ExpiresAt = expiresAt.Time
	}

	for key, value := range mapClaims {
		switch key {
		case "sub", "iat", "exp":
		default:
			if claims.Extra == nil {
				claims.Extra = map[string]any{}
			}
			claims.Extra[key] = value
		}
	}

	return claims, nil
}

// ExtractSubject verifies the token and returns its subject.
func (c *Codec) ExtractSubject(tokenString string) (string, error) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// MatchesPrincipal reports whether the token verifies (including expiry) and
// its subject equals expectedSubject exactly. It never returns an error; any
// failure is false.
func (c *Codec) MatchesPrincipal(tokenString, expectedSubject string) bool {
	subject, err := c.ExtractSubject(tokenString)
	if err != nil {
		return false
	}
	return subject == expectedSubject
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}
