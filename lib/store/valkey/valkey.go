package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/shui-community/walletauth/lib/store"
	valkey "github.com/redis/go-redis/v9"
)

// Store implements store.Interface on top of valkey (or redis). Every
// instance of walletauth pointed at the same database shares anti-replay
// markers and rate limit counters, so SetNX and Increment are atomic across
// processes.
type Store struct {
	rdb    *valkey.Client
	prefix string
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, s.prefix+key).Result()
	if err != nil {
		return fmt.Errorf("can't delete from valkey: %w", err)
	}

	switch n {
	case 0:
		return fmt.Errorf("%w: %d key(s) deleted", store.ErrNotFound, n)
	default:
		return nil
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if valkey.HasErrorPrefix(err, "redis: nil") {
			return nil, fmt.Errorf("%w: %w", store.ErrNotFound, err)
		}

		return nil, fmt.Errorf("can't fetch from valkey: %w", err)
	}

	return []byte(result), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	if _, err := s.rdb.Set(ctx, s.prefix+key, string(value), expiry).Result(); err != nil {
		return fmt.Errorf("can't set %q in valkey: %w", key, err)
	}

	return nil
}

// SetNX issues SET key value NX PX expiry.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, expiry time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, string(value), expiry).Result()
	if err != nil {
		return false, fmt.Errorf("can't setnx %q in valkey: %w", key, err)
	}

	return ok, nil
}

// Increment runs INCR, EXPIRE NX and PTTL in one MULTI/EXEC block so the
// window starts with the first hit and is never extended by later ones.
func (s *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *valkey.IntCmd
		pttl *valkey.DurationCmd
	)

	if _, err := s.rdb.TxPipelined(ctx, func(pipe valkey.Pipeliner) error {
		incr = pipe.Incr(ctx, s.prefix+key)
		pipe.ExpireNX(ctx, s.prefix+key, window)
		pttl = pipe.PTTL(ctx, s.prefix+key)
		return nil
	}); err != nil {
		return 0, 0, fmt.Errorf("can't increment %q in valkey: %w", key, err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		// -1 (no expiry) or -2 (gone) only happen if something else touched the key
		ttl = window
	}

	return incr.Val(), ttl, nil
}
