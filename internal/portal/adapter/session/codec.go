// Package session signs principals into HS256 session tokens.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"portal/internal/domain"
)

// DefaultMaxAge is the session lifetime when none is configured.
const DefaultMaxAge = 7 * 24 * time.Hour

type claims struct {
	ProfileID int64  `json:"pid"`
	UserName  string `json:"usr"`
	OrgID     int64  `json:"org"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes session tokens with a server-side secret.
type Codec struct {
	secret []byte
	issuer string
	maxAge time.Duration
	now    func() time.Time
}

// NewCodec creates a codec. A non-positive maxAge means DefaultMaxAge.
// clock is injectable for deterministic testing.
func NewCodec(secret []byte, issuer string, maxAge time.Duration, clock func() time.Time) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if clock == nil {
		clock = time.Now
	}
	return &Codec{secret: secret, issuer: issuer, maxAge: maxAge, now: clock}, nil
}

// MaxAge returns the configured session lifetime.
func (c *Codec) MaxAge() time.Duration {
	return c.maxAge
}

// Encode issues a token for p valid for MaxAge from now.
func (c *Codec) Encode(p domain.Principal) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("encoding session: %w", domain.ErrSessionInvalid)
	}
	now := c.now().Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ProfileID: p.ProfileID,
		UserName:  p.UserName,
		OrgID:     p.OrgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns its session. Any failure yields ok=false.
func (c *Codec) Decode(token string) (domain.Session, bool) {
	if token == "" {
		return domain.Session{}, false
	}
	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || cl.IssuedAt == nil {
		return domain.Session{}, false
	}

	p := domain.Principal{
		ID:        cl.Subject,
		ProfileID: cl.ProfileID,
		UserName:  cl.UserName,
		OrgID:     cl.OrgID,
	}
	if !p.Valid() {
		return domain.Session{}, false
	}
	s := domain.Session{
		Principal: p,
		IssuedAt:  cl.IssuedAt.Time,
		ExpiresAt: cl.ExpiresAt.Time,
	}
	// Tokens issued under a longer lifetime stop working once it is shortened.
	if s.Age(c.now()) > c.maxAge {
		return domain.Session{}, false
	}
	return s, true
}

// ShouldRenew reports whether s has used up more than half its lifetime.
func (c *Codec) ShouldRenew(s domain.Session) bool {
	return s.Age(c.now()) > s.Lifetime()/2
}
