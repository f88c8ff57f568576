// Package seal turns claims into tamper-evident tokens with an HMAC-SHA256
// key held only by the server, and opens them again. Tokens are compact
// JWTs; the audience claim keeps tokens minted for one purpose from being
// accepted for another.
package seal

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shui-community/walletauth"
)

var (
	// ErrMisconfigured is returned when the server secret is missing or too
	// short to be trusted.
	ErrMisconfigured = errors.New("seal: server secret is missing or shorter than 32 bytes")

	// ErrInvalid covers every integrity or structure failure. Callers get no
	// finer detail so responses cannot be used as an oracle.
	ErrInvalid = errors.New("seal: token is invalid")

	// ErrExpired is returned when an intact token is past its exp claim.
	ErrExpired = errors.New("seal: token is expired")
)

// Claims are the claim sets that can be sealed. Implementations embed
// jwt.RegisteredClaims and return a pointer to it from Registered.
type Claims interface {
	jwt.Claims
	Registered() *jwt.RegisteredClaims
}

// Sealer signs and opens tokens for a single audience.
type Sealer struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// New creates a Sealer for audience. now may be nil, in which case
// time.Now is used.
func New(secret []byte, audience string, now func() time.Time) (*Sealer, error) {
	if len(secret) < walletauth.MinSecretLength {
		return nil, ErrMisconfigured
	}

	if now == nil {
		now = time.Now
	}

	return &Sealer{
		secret:   slices.Clone(secret),
		audience: audience,
		now:      now,
	}, nil
}

// Audience returns the audience this sealer stamps and requires.
func (s *Sealer) Audience() string { return s.audience }

// Now returns the sealer's current time.
func (s *Sealer) Now() time.Time { return s.now() }

// Seal stamps claims with this sealer's audience and returns the token.
func (s *Sealer) Seal(claims Claims) (string, error) {
	claims.Registered().Audience = jwt.ClaimStrings{s.audience}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("seal: can't sign token: %w", err)
	}

	return tok, nil
}

// Open verifies token and decodes it into claims. The checks happen in a
// fixed order: signature and structure, then audience, then expiry.
func (s *Sealer) Open(token string, claims Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		// expiry is checked below against the injected clock
		jwt.WithoutClaimsValidation(),
	)

	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	aud, err := claims.GetAudience()
	if err != nil || !slices.Contains(aud, s.audience) {
		return fmt.Errorf("%w: wrong audience", ErrInvalid)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("%w: missing exp", ErrInvalid)
	}

	if s.now().After(exp.Time) {
		return ErrExpired
	}

	return nil
}
