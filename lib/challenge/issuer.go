package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shui-community/walletauth/lib/seal"
	"github.com/shui-community/walletauth/lib/wallet"
)

// Audience is stamped on every sealed challenge.
const Audience = "walletauth:challenge"

const randomBytes = 16

type claims struct {
	jwt.RegisteredClaims
	Nonce  string `json:"nonce"`
	Origin string `json:"origin"`
}

func (c *claims) Registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// Issued is what Issue hands back to the caller: the challenge, the sealed
// token the client returns later, and the message the wallet must sign.
type Issued struct {
	Challenge *Challenge
	Token     string
	Message   string
}

// Issuer mints and opens sealed challenges.
type Issuer struct {
	sealer *seal.Sealer
	ttl    time.Duration
}

// NewIssuer creates an Issuer. The secret must be at least
// walletauth.MinSecretLength bytes; anything shorter yields
// seal.ErrMisconfigured.
func NewIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if ttl <= 0 || ttl%time.Second != 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadTTL, ttl)
	}

	s, err := seal.New(secret, Audience, now)
	if err != nil {
		return nil, err
	}

	return &Issuer{sealer: s, ttl: ttl}, nil
}

// TTL returns how long issued challenges stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue mints a fresh challenge for addr bound to origin. Nonce and id are
// drawn from the system CSPRNG; two calls never share either.
func (i *Issuer) Issue(addr wallet.Address, origin string) (*Issued, error) {
	nonce, err := randomHex()
	if err != nil {
		return nil, err
	}

	id, err := randomHex()
	if err != nil {
		return nil, err
	}

	issuedAt := i.sealer.Now().UTC().Truncate(time.Second)

	chall := &Challenge{
		Wallet:    addr,
		Nonce:     nonce,
		ID:        id,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(i.ttl),
		Origin:    origin,
	}

	msg, err := chall.Message()
	if err != nil {
		return nil, err
	}

	tok, err := i.sealer.Seal(&claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.String(),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(chall.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(chall.ExpiresAt),
		},
		Nonce:  nonce,
		Origin: origin,
	})
	if err != nil {
		return nil, err
	}

	challengesIssued.Inc()

	return &Issued{Challenge: chall, Token: tok, Message: msg}, nil
}

// Open verifies token and returns the challenge sealed inside it. Integrity
// failures return seal.ErrInvalid; an intact but expired challenge returns
// seal.ErrExpired.
func (i *Issuer) Open(token string) (*Challenge, error) {
	var c claims
	if err := i.sealer.Open(token, &c); err != nil {
		return nil, err
	}

	if c.IssuedAt == nil || c.ExpiresAt == nil || len(c.ID) != randomBytes*2 || len(c.Nonce) != randomBytes*2 || c.Origin == "" {
		return nil, fmt.Errorf("%w: %w", seal.ErrInvalid, ErrMalformed)
	}

	addr, err := wallet.ParseAddress(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", seal.ErrInvalid, errors.Join(ErrMalformed, err))
	}

	return &Challenge{
		Wallet:    addr,
		Nonce:     c.Nonce,
		ID:        c.ID,
		IssuedAt:  c.IssuedAt.UTC(),
		ExpiresAt: c.ExpiresAt.UTC(),
		Origin:    c.Origin,
	}, nil
}

func randomHex() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("challenge: can't read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
