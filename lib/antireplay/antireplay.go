// Package antireplay records redeemed challenge ids so each challenge can
// log a wallet in at most once.
package antireplay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/lib/store"
)

var (
	// ErrAlreadyUsed is returned when the challenge id was consumed before.
	ErrAlreadyUsed = errors.New("antireplay: challenge already used")

	// ErrUnavailable is returned when the store can't be reached in time.
	// Callers must treat it as a refusal.
	ErrUnavailable = errors.New("antireplay: replay store unavailable")
)

// Marker is the value stored for a consumed challenge.
type Marker struct {
	Wallet string    `json:"wallet"`
	UsedAt time.Time `json:"usedAt"`
}

// Guard consumes challenge ids against a store shared by every instance.
type Guard struct {
	markers *store.JSON[Marker]
	timeout time.Duration
	now     func() time.Time
}

// New creates a Guard. A zero timeout means walletauth.DefaultStoreTimeout.
func New(backend store.Interface, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = walletauth.DefaultStoreTimeout
	}

	return &Guard{
		markers: &store.JSON[Marker]{
			Underlying: backend,
			Prefix:     walletauth.NonceUsedPrefix,
		},
		timeout: timeout,
		now:     time.Now,
	}
}

// Consume marks id as used for ttl. Exactly one of any number of concurrent
// calls with the same id returns nil.
func (g *Guard) Consume(ctx context.Context, id, wallet string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	stored, err := g.markers.SetNX(ctx, id, Marker{Wallet: wallet, UsedAt: g.now().UTC()}, ttl)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if !stored {
		return ErrAlreadyUsed
	}

	return nil
}

// Lookup returns the marker for id if it was consumed and has not expired.
func (g *Guard) Lookup(ctx context.Context, id string) (Marker, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.markers.Get(ctx, id)
}
