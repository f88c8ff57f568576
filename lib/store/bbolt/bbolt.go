package bbolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shui-community/walletauth/lib/store"
	"go.etcd.io/bbolt"
)

// Sentinel error values used for testing and in admin-visible error messages.
var (
	ErrNotExists = errors.New("bbolt: value does not exist in store")
)

// Store implements store.Interface backed by bbolt[1].
//
// In essence, bbolt is a hierarchical key/value store with a twist: every value
// needs to belong to a bucket. Each value in the store is given its own
// bucket with two keys:
//
// 1. data - The raw data: a JSON document, an anti-replay marker or a decimal counter
// 2. expiry - The expiry time formatted as a time.RFC3339Nano timestamp string
//
// SetNX and Increment run inside a single read-write transaction. bbolt
// serialises writers, so both are atomic for this process. The database file
// is locked by one process at a time, which makes bbolt a single-node backend.
// Deployments with more than one walletauth instance need valkey.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb *bbolt.DB
}

// Delete a key from the datastore. If the key does not exist, return an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(key)) == nil {
			return fmt.Errorf("%w: %w: %q", store.ErrNotFound, ErrNotExists, key)
		}

		return tx.DeleteBucket([]byte(key))
	})
}

// Get a value from the datastore.
//
// Because each value is stored in its own bucket with data and expiry keys,
// the expiry is checked before the data is copied out. Expired values read as
// missing and are removed by the cleanup thread.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		itemBucket, _, err := liveBucket(tx, key, time.Now())
		if err != nil {
			return err
		}

		if itemBucket == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		dataStr := itemBucket.Get([]byte("data"))
		if dataStr == nil {
			return fmt.Errorf("[unexpected] %w: %q (data is nil)", store.ErrNotFound, key)
		}

		result = make([]byte, len(dataStr))
		copy(result, dataStr)

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	expires := time.Now().Add(expiry)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		return putValue(tx, key, value, expires)
	})
}

// liveBucket returns the bucket for key if it exists and has not expired.
func liveBucket(tx *bbolt.Tx, key string, now time.Time) (*bbolt.Bucket, time.Time, error) {
	itemBucket := tx.Bucket([]byte(key))
	if itemBucket == nil {
		return nil, time.Time{}, nil
	}

	expiryStr := itemBucket.Get([]byte("expiry"))
	if expiryStr == nil {
		return nil, time.Time{}, nil
	}

	expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	if now.After(expiry) {
		return nil, expiry, nil
	}

	return itemBucket, expiry, nil
}

func putValue(tx *bbolt.Tx, key string, value []byte, expires time.Time) error {
	if tx.Bucket([]byte(key)) != nil {
		if err := tx.DeleteBucket([]byte(key)); err != nil {
			return fmt.Errorf("%w: %w: %q (replace bucket)", store.ErrCantEncode, err, key)
		}
	}

	valueBkt, err := tx.CreateBucket([]byte(key))
	if err != nil {
		return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, key)
	}

	if err := valueBkt.Put([]byte("expiry"), []byte(expires.Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("%w: %q (expiry)", store.ErrCantEncode, key)
	}

	if err := valueBkt.Put([]byte("data"), value); err != nil {
		return fmt.Errorf("%w: %q (data)", store.ErrCantEncode, key)
	}

	return nil
}

// SetNX stores value only if key has no live value.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, expiry time.Duration) (bool, error) {
	var stored bool

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		now := time.Now()

		bkt, _, err := liveBucket(tx, key, now)
		if err != nil {
			return err
		}

		if bkt != nil {
			return nil
		}

		if err := putValue(tx, key, value, now.Add(expiry)); err != nil {
			return err
		}

		stored = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return stored, nil
}

// Increment bumps the decimal counter stored at key. A missing or expired
// counter starts over at one with a fresh window.
func (s *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		count   int64
		expires time.Time
	)

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		now := time.Now()

		bkt, expiry, err := liveBucket(tx, key, now)
		if err != nil {
			return err
		}

		if bkt == nil {
			count = 1
			expires = now.Add(window)
			return putValue(tx, key, []byte("1"), expires)
		}

		count, err = strconv.ParseInt(string(bkt.Get([]byte("data"))), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a counter: %w", store.ErrCantDecode, key, err)
		}

		count++
		expires = expiry

		return bkt.Put([]byte("data"), strconv.AppendInt(nil, count, 10))
	})
	if err != nil {
		return 0, 0, err
	}

	return count, time.Until(expires), nil
}

func (s *Store) cleanup(ctx context.Context) error {
	now := time.Now()

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		var expired [][]byte

		if err := tx.ForEach(func(key []byte, valueBkt *bbolt.Bucket) error {
			expiryStr := valueBkt.Get([]byte("expiry"))
			if expiryStr == nil {
				slog.Warn("while running cleanup, expiry is not set somehow, file a bug?", "key", string(key))
				return nil
			}

			expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
			if err != nil {
				return fmt.Errorf("[unexpected] %w in bucket %q: %w", store.ErrCantDecode, string(key), err)
			}

			if now.After(expiry) {
				// keys are only valid for the life of the transaction
				expired = append(expired, append([]byte(nil), key...))
			}

			return nil
		}); err != nil {
			return err
		}

		for _, key := range expired {
			if err := tx.DeleteBucket(key); err != nil {
				return fmt.Errorf("can't delete expired bucket %q: %w", string(key), err)
			}
		}

		return nil
	})
}

func (s *Store) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.bdb.Close(); err != nil {
				slog.Error("can't close bbolt database", "err", err)
			}
			return
		case <-t.C:
			if err := s.cleanup(ctx); err != nil {
				slog.Error("error during bbolt cleanup", "err", err)
			}
		}
	}
}
