package session_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/internal/domain"
	"portal/internal/portal/adapter/session"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newCodec(t *testing.T, maxAge time.Duration) (*session.Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c, err := session.NewCodec(secret, "school-portal", maxAge, clock.Now)
	require.NoError(t, err)
	return c, clock
}

func TestRoundTrip(t *testing.T) {
	c, _ := newCodec(t, 0)
	principals := []domain.Principal{
		domain.NewPrincipal(42, "jdoe", 3),
		domain.NewPrincipal(1, "a", 1),
		domain.NewPrincipal(9_000_000_001, "Zoë Ångström", 77),
	}

	for _, p := range principals {
		token, err := c.Encode(p)
		require.NoError(t, err)

		s, ok := c.Decode(token)
		require.True(t, ok, "principal %+v", p)
		assert.Equal(t, p, s.Principal)
		assert.Equal(t, session.DefaultMaxAge, s.Lifetime())
	}
}

func TestDecodeBeforeExpiry(t *testing.T) {
	c, clock := newCodec(t, time.Hour)
	token, err := c.Encode(domain.NewPrincipal(42, "jdoe", 3))
	require.NoError(t, err)

	clock.now = clock.now.Add(59 * time.Minute)
	_, ok := c.Decode(token)
	assert.True(t, ok)
}

func TestDecodeExpired(t *testing.T) {
	c, clock := newCodec(t, time.Hour)
	token, err := c.Encode(domain.NewPrincipal(42, "jdoe", 3))
	require.NoError(t, err)

	clock.now = clock.now.Add(61 * time.Minute)
	_, ok := c.Decode(token)
	assert.False(t, ok)
}

func TestDecodeRejectsTokenOlderThanCurrentMaxAge(t *testing.T) {
	long, clock := newCodec(t, 24*time.Hour)
	token, err := long.Encode(domain.NewPrincipal(42, "jdoe", 3))
	require.NoError(t, err)

	short, err := session.NewCodec(secret, "school-portal", time.Hour, clock.Now)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Hour)
	_, ok := short.Decode(token)
	assert.False(t, ok)
}

func TestDecodeTampered(t *testing.T) {
	c, _ := newCodec(t, 0)
	token, err := c.Encode(domain.NewPrincipal(42, "jdoe", 3))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Swap the payload for one claiming a different organisation.
	other, err := c.Encode(domain.NewPrincipal(42, "jdoe", 4))
	require.NoError(t, err)
	forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]

	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	badSig := parts[0] + "." + parts[1] + "." + string(sig)

	for name, tok := range map[string]string{
		"forged payload": forged,
		"bad signature":  badSig,
		"truncated":      parts[0] + "." + parts[1],
		"empty":          "",
		"garbage":        "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := c.Decode(tok)
			assert.False(t, ok)
		})
	}
}

func TestDecodeRejectsOtherSecretAndIssuer(t *testing.T) {
	c, clock := newCodec(t, 0)
	p := domain.NewPrincipal(42, "jdoe", 3)

	otherSecret, err := session.NewCodec([]byte("another-secret-another-secret-xx"), "school-portal", 0, clock.Now)
	require.NoError(t, err)
	token, err := otherSecret.Encode(p)
	require.NoError(t, err)
	_, ok := c.Decode(token)
	assert.False(t, ok, "other secret")

	otherIssuer, err := session.NewCodec(secret, "somebody-else", 0, clock.Now)
	require.NoError(t, err)
	token, err = otherIssuer.Encode(p)
	require.NoError(t, err)
	_, ok = c.Decode(token)
	assert.False(t, ok, "other issuer")
}

func TestDecodeRejectsOtherAlgorithms(t *testing.T) {
	c, clock := newCodec(t, 0)
	now := clock.now
	mc := jwt.MapClaims{
		"sub": "42", "pid": 42, "usr": "jdoe", "org": 3,
		"iss": "school-portal",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, mc).SignedString(secret)
	require.NoError(t, err)
	_, ok := c.Decode(hs512)
	assert.False(t, ok, "HS512")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, mc).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, ok = c.Decode(none)
	assert.False(t, ok, "alg none")
}

func TestDecodeRejectsMissingPrincipal(t *testing.T) {
	c, clock := newCodec(t, 0)
	now := clock.now

	cases := map[string]jwt.MapClaims{
		"no principal": {"iss": "school-portal", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"zero org":     {"sub": "42", "pid": 42, "usr": "jdoe", "org": 0, "iss": "school-portal", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"sub mismatch": {"sub": "43", "pid": 42, "usr": "jdoe", "org": 3, "iss": "school-portal", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"no expiry":    {"sub": "42", "pid": 42, "usr": "jdoe", "org": 3, "iss": "school-portal", "iat": now.Unix()},
		"no iat":       {"sub": "42", "pid": 42, "usr": "jdoe", "org": 3, "iss": "school-portal", "exp": now.Add(time.Hour).Unix()},
	}
	for name, mc := range cases {
		t.Run(name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(secret)
			require.NoError(t, err)
			_, ok := c.Decode(token)
			assert.False(t, ok)
		})
	}
}

func TestEncodeRejectsInvalidPrincipal(t *testing.T) {
	c, _ := newCodec(t, 0)

	_, err := c.Encode(domain.Principal{ID: "1", ProfileID: 1, UserName: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionInvalid)
}

func TestShouldRenew(t *testing.T) {
	c, clock := newCodec(t, 2*time.Hour)
	token, err := c.Encode(domain.NewPrincipal(42, "jdoe", 3))
	require.NoError(t, err)
	s, ok := c.Decode(token)
	require.True(t, ok)

	clock.now = clock.now.Add(30 * time.Minute)
	assert.False(t, c.ShouldRenew(s))

	clock.now = clock.now.Add(time.Hour)
	assert.True(t, c.ShouldRenew(s))
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := session.NewCodec(nil, "x", 0, nil)
	assert.Error(t, err)
}
