// Package wallet parses base58 ed25519 wallet addresses and checks message
// signatures made by them.
package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/decred/base58"
)

var (
	ErrEmpty        = errors.New("wallet: address is empty")
	ErrNotBase58    = errors.New("wallet: address is not base58")
	ErrWrongLength  = errors.New("wallet: address does not decode to a 32 byte public key")
	ErrNotCanonical = errors.New("wallet: address is not in canonical form")
)

// Address is a wallet address in canonical base58 form. The zero value is
// not a valid address; obtain one with ParseAddress.
type Address string

// ParseAddress accepts s only when it decodes to a 32 byte public key and
// re-encodes to exactly s. Surrounding whitespace, leading zero padding and
// other alternate spellings of the same key are rejected.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", ErrEmpty
	}

	raw := base58.Decode(s)
	if len(raw) == 0 {
		return "", ErrNotBase58
	}

	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: got %d bytes", ErrWrongLength, len(raw))
	}

	if base58.Encode(raw) != s {
		return "", ErrNotCanonical
	}

	return Address(s), nil
}

// FromPublicKey encodes pub as an address.
func FromPublicKey(pub ed25519.PublicKey) Address {
	return Address(base58.Encode(pub))
}

// PublicKey decodes the address. It fails only for addresses that did not
// come from ParseAddress or FromPublicKey.
func (a Address) PublicKey() (ed25519.PublicKey, error) {
	raw := base58.Decode(string(a))
	if len(raw) == 0 {
		return nil, ErrNotBase58
	}

	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrWrongLength, len(raw))
	}

	return ed25519.PublicKey(raw), nil
}

func (a Address) String() string { return string(a) }

// Verify reports whether sig is a valid signature of message by the key
// behind address. sig is the base58 encoding of a 64 byte ed25519 signature.
// Any decoding problem is a failed verification, never a pass.
func Verify(message []byte, sig string, address Address) bool {
	pub, err := address.PublicKey()
	if err != nil {
		return false
	}

	rawSig := base58.Decode(sig)
	if len(rawSig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(pub, message, rawSig)
}

// Sign signs message with priv and returns the base58 signature in the form
// Verify expects. Used by the walletlogin client and tests.
func Sign(priv ed25519.PrivateKey, message []byte) string {
	return base58.Encode(ed25519.Sign(priv, message))
}
