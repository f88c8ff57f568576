// Package session issues and validates the sealed session carried in the
// session cookie after a successful wallet login.
package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shui-community/walletauth/lib/seal"
	"github.com/shui-community/walletauth/lib/wallet"
)

// Audience is stamped on every sealed session.
const Audience = "walletauth:session"

// Session is an authenticated wallet with its validity window.
type Session struct {
	Wallet    wallet.Address
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

func (c *claims) Registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// Codec seals and opens sessions.
type Codec struct {
	sealer *seal.Sealer
	ttl    time.Duration
}

// NewCodec creates a Codec. A secret shorter than walletauth.MinSecretLength
// yields seal.ErrMisconfigured.
func NewCodec(secret []byte, ttl time.Duration, now func() time.Time) (*Codec, error) {
	s, err := seal.New(secret, Audience, now)
	if err != nil {
		return nil, err
	}

	return &Codec{sealer: s, ttl: ttl}, nil
}

// TTL returns the lifetime of issued sessions.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue seals a new session for addr.
func (c *Codec) Issue(addr wallet.Address) (string, *Session, error) {
	now := c.sealer.Now().UTC().Truncate(time.Second)
	sess := &Session{
		Wallet:    addr,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	tok, err := c.sealer.Seal(&claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   addr.String(),
		IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}})
	if err != nil {
		return "", nil, err
	}

	return tok, sess, nil
}

// Validate opens token. Any failure, expiry included, yields ok == false.
func (c *Codec) Validate(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}

	var cl claims
	if err := c.sealer.Open(token, &cl); err != nil {
		return nil, false
	}

	if cl.IssuedAt == nil {
		return nil, false
	}

	addr, err := wallet.ParseAddress(cl.Subject)
	if err != nil {
		return nil, false
	}

	return &Session{
		Wallet:    addr,
		IssuedAt:  cl.IssuedAt.UTC(),
		ExpiresAt: cl.ExpiresAt.UTC(),
	}, true
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(*Session)
	return sess, ok && sess != nil
}
