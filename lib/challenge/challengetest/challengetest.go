// Package challengetest has fixtures for tests that need wallets and
// challenges.
package challengetest

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shui-community/walletauth/lib/challenge"
	"github.com/shui-community/walletauth/lib/wallet"
)

// Origin is the origin fixtures are bound to.
const Origin = "http://localhost:3000"

// Secret is a server secret long enough to be accepted.
var Secret = []byte("0123456789abcdef0123456789abcdef-test")

// Wallet is a throwaway ed25519 key pair.
type Wallet struct {
	Address wallet.Address
	Private ed25519.PrivateKey
}

// Sign signs msg and returns the base58 signature.
func (w Wallet) Sign(msg string) string {
	return wallet.Sign(w.Private, []byte(msg))
}

// NewWallet generates a fresh wallet.
func NewWallet(t testing.TB) Wallet {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("can't generate key: %v", err)
	}

	return Wallet{Address: wallet.FromPublicKey(pub), Private: priv}
}

// New makes an unsealed challenge for a fresh wallet.
func New(t testing.TB) *challenge.Challenge {
	t.Helper()

	issuedAt := time.Now().UTC().Truncate(time.Second)

	return &challenge.Challenge{
		Wallet:    NewWallet(t).Address,
		Nonce:     hexID(),
		ID:        hexID(),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(5 * time.Minute),
		Origin:    Origin,
	}
}

func hexID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
