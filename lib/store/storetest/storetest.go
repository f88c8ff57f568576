package storetest

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shui-community/walletauth/lib/store"
)

// Common runs the conformance suite every store backend must pass.
func Common(t *testing.T, f store.Factory, config json.RawMessage) {
	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	s, err := f.Build(t.Context(), config)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		doer func(t *testing.T, s store.Interface) error
		err  error
	}{
		{
			name: "basic get set delete",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to exist in store but it does not: %v", t.Name(), err)
				} else if err != nil {
					t.Error(err)
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Logf("want: %q", t.Name())
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				if err := s.Delete(t.Context(), t.Name()); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Error("wanted test to not exist in store but it exists anyways")
				}

				if err := s.Delete(t.Context(), t.Name()); err == nil {
					t.Errorf("key %q does not exist and Delete did not return non-nil", t.Name())
				}

				return nil
			},
		},
		{
			name: "expires",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 150*time.Millisecond); err != nil {
					return err
				}

				//nosleep:bypass XXX(Xe): use Go's time faking thing in Go 1.25 when that is released.
				time.Sleep(155 * time.Millisecond)

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				return nil
			},
		},
		{
			name: "setnx only stores once",
			doer: func(t *testing.T, s store.Interface) error {
				ok, err := s.SetNX(t.Context(), t.Name(), []byte("first"), 5*time.Minute)
				if err != nil {
					return err
				}

				if !ok {
					t.Error("first SetNX on a fresh key did not store the value")
				}

				ok, err = s.SetNX(t.Context(), t.Name(), []byte("second"), 5*time.Minute)
				if err != nil {
					return err
				}

				if ok {
					t.Error("second SetNX overwrote a live value")
				}

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					return err
				}

				if !bytes.Equal(val, []byte("first")) {
					t.Logf("want: %q", "first")
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				return nil
			},
		},
		{
			name: "setnx has exactly one winner",
			doer: func(t *testing.T, s store.Interface) error {
				var (
					wg   sync.WaitGroup
					wins atomic.Int64
					errs = make(chan error, 32)
				)

				for range 32 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						ok, err := s.SetNX(t.Context(), t.Name(), []byte("1"), 5*time.Minute)
						if err != nil {
							errs <- err
							return
						}
						if ok {
							wins.Add(1)
						}
					}()
				}

				wg.Wait()
				close(errs)

				if err, ok := <-errs; ok {
					return err
				}

				if got := wins.Load(); got != 1 {
					t.Errorf("wanted exactly one SetNX winner, got: %d", got)
				}

				return nil
			},
		},
		{
			name: "setnx after expiry",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.SetNX(t.Context(), t.Name(), []byte("1"), 150*time.Millisecond); err != nil {
					return err
				}

				//nosleep:bypass XXX(Xe): use Go's time faking thing in Go 1.25 when that is released.
				time.Sleep(1100 * time.Millisecond)

				ok, err := s.SetNX(t.Context(), t.Name(), []byte("2"), 5*time.Minute)
				if err != nil {
					return err
				}

				if !ok {
					t.Error("SetNX on an expired key did not store the value")
				}

				return nil
			},
		},
		{
			name: "increment counts within a window",
			doer: func(t *testing.T, s store.Interface) error {
				for want := int64(1); want <= 5; want++ {
					got, ttl, err := s.Increment(t.Context(), t.Name(), time.Minute)
					if err != nil {
						return err
					}

					if got != want {
						t.Logf("want: %d", want)
						t.Logf("got:  %d", got)
						t.Error("wrong count returned")
					}

					if ttl <= 0 || ttl > time.Minute {
						t.Errorf("ttl %s is outside the window", ttl)
					}
				}

				return nil
			},
		},
		{
			name: "increment restarts after the window",
			doer: func(t *testing.T, s store.Interface) error {
				for range 3 {
					if _, _, err := s.Increment(t.Context(), t.Name(), time.Second); err != nil {
						return err
					}
				}

				//nosleep:bypass XXX(Xe): use Go's time faking thing in Go 1.25 when that is released.
				time.Sleep(1100 * time.Millisecond)

				got, _, err := s.Increment(t.Context(), t.Name(), time.Second)
				if err != nil {
					return err
				}

				if got != 1 {
					t.Errorf("wanted counter to restart at 1, got: %d", got)
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.doer(t, s); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
