package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

var (
	registry map[string]Factory = map[string]Factory{}
	regLock  sync.RWMutex
)

// Factory validates backend parameters and builds a backend from them.
type Factory interface {
	Build(ctx context.Context, config json.RawMessage) (Interface, error)
	Valid(config json.RawMessage) error
}

// Register makes a backend available under name. Backends call this from init.
func Register(name string, impl Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

// Methods lists the registered backend names in sorted order.
func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for method := range registry {
		result = append(result, method)
	}
	sort.Strings(result)
	return result
}

// Build looks up backend and builds it with params.
func Build(ctx context.Context, backend string, params json.RawMessage) (Interface, error) {
	fac, ok := Get(backend)
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q, known: %v", ErrBadConfig, backend, Methods())
	}

	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	return fac.Build(ctx, params)
}
