package store_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shui-community/walletauth/lib/store"
	_ "github.com/shui-community/walletauth/lib/store/all"
)

func TestMethods(t *testing.T) {
	methods := store.Methods()

	for _, want := range []string{"bbolt", "memory", "valkey"} {
		if !slices.Contains(methods, want) {
			t.Errorf("backend %q is not registered, have: %v", want, methods)
		}
	}

	if !slices.IsSorted(methods) {
		t.Errorf("methods are not sorted: %v", methods)
	}
}

func TestBuild(t *testing.T) {
	if _, err := store.Build(t.Context(), "taco", nil); !errors.Is(err, store.ErrBadConfig) {
		t.Logf("want: %v", store.ErrBadConfig)
		t.Logf("got:  %v", err)
		t.Error("wrong error for unknown backend")
	}

	s, err := store.Build(t.Context(), "memory", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Set(t.Context(), "key", []byte("value"), time.Minute); err != nil {
		t.Fatal(err)
	}
}
