// Package challenge mints single-use, time-boxed login challenges, renders
// the exact text a wallet signs for them, and opens them again when the
// signature comes back.
package challenge

import (
	"errors"
	"time"

	"github.com/shui-community/walletauth/lib/wallet"
)

var (
	ErrInvalidOrigin = errors.New("challenge: origin is not an absolute http(s) URL")
	ErrBadTTL        = errors.New("challenge: ttl must be a positive whole number of seconds")
	ErrMalformed     = errors.New("challenge: sealed token is structurally invalid")
)

// Challenge is the login challenge a wallet signs. It never lives in a
// server-side table; it travels to the client sealed and comes back the
// same way.
type Challenge struct {
	Wallet    wallet.Address `json:"wallet"`
	Nonce     string         `json:"nonce"`
	ID        string         `json:"challengeId"`
	IssuedAt  time.Time      `json:"issuedAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Origin    string         `json:"origin"`
}

// Expired reports whether the challenge is past its expiry at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
