package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shui-community/walletauth/decaymap"
	"github.com/shui-community/walletauth/lib/store"
)

type factory struct{}

func (factory) Build(ctx context.Context, _ json.RawMessage) (store.Interface, error) {
	return New(ctx), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

type impl struct {
	store *decaymap.Impl[string, []byte]
}

func (i *impl) Delete(_ context.Context, key string) error {
	if !i.store.Delete(key) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	result, ok := i.store.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return result, nil
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	i.store.Set(key, value, expiry)
	return nil
}

func (i *impl) SetNX(_ context.Context, key string, value []byte, expiry time.Duration) (bool, error) {
	return i.store.SetIfAbsent(key, value, expiry), nil
}

func (i *impl) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var decodeErr error

	data, expiry := i.store.Update(key, window, func(old []byte, ok bool) []byte {
		var n int64
		if ok {
			n, decodeErr = strconv.ParseInt(string(old), 10, 64)
			if decodeErr != nil {
				return old
			}
		}

		return strconv.AppendInt(nil, n+1, 10)
	})

	if decodeErr != nil {
		return 0, 0, fmt.Errorf("%w: %q is not a counter: %w", store.ErrCantDecode, key, decodeErr)
	}

	count, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	return count, time.Until(expiry), nil
}

func (i *impl) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			i.store.Cleanup()
		}
	}
}

// New creates a simple in-memory store. SetNX and Increment are atomic inside
// this process only, so this backend will not scale to multiple walletauth
// instances. Use valkey for that.
func New(ctx context.Context) store.Interface {
	result := &impl{
		store: decaymap.New[string, []byte](),
	}

	go result.cleanupThread(ctx)

	return result
}
