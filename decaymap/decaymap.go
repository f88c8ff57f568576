// Package decaymap is a generic map whose entries expire after a per-entry
// time to live. Expired entries are dropped lazily on read and in bulk by
// Cleanup.
package decaymap

import (
	"sync"
	"time"
)

// Zilch returns the zero value of T.
func Zilch[T any]() T {
	var zero T
	return zero
}

type decayMapEntry[V any] struct {
	Value  V
	expiry time.Time
}

// Impl is a lock-guarded map of values that expire. The zero value is not
// usable, create one with New.
type Impl[K comparable, V any] struct {
	data map[K]decayMapEntry[V]
	lock sync.RWMutex
}

// New creates an empty decaying map.
func New[K comparable, V any]() *Impl[K, V] {
	return &Impl[K, V]{
		data: make(map[K]decayMapEntry[V]),
	}
}

func (m *Impl[K, V]) expire(key K) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	// re-check under the write lock, another writer may have replaced it
	if val, ok := m.data[key]; ok && time.Now().After(val.expiry) {
		delete(m.data, key)
		return true
	}

	return false
}

// Get returns the value for key if it exists and has not expired.
func (m *Impl[K, V]) Get(key K) (V, bool) {
	m.lock.RLock()
	value, ok := m.data[key]
	m.lock.RUnlock()

	if !ok {
		return Zilch[V](), false
	}

	if time.Now().After(value.expiry) {
		m.expire(key)
		return Zilch[V](), false
	}

	return value.Value, true
}

// Set stores value under key for ttl, replacing any existing entry.
func (m *Impl[K, V]) Set(key K, value V, ttl time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.data[key] = decayMapEntry[V]{
		Value:  value,
		expiry: time.Now().Add(ttl),
	}
}

// SetIfAbsent stores value under key for ttl only when no live entry exists.
// It reports whether the value was stored. The check and the write happen
// under one lock, so exactly one of many concurrent callers wins.
func (m *Impl[K, V]) SetIfAbsent(key K, value V, ttl time.Duration) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	if val, ok := m.data[key]; ok && !now.After(val.expiry) {
		return false
	}

	m.data[key] = decayMapEntry[V]{
		Value:  value,
		expiry: now.Add(ttl),
	}

	return true
}

// Update atomically replaces the value under key with fn(old, ok). A live
// entry keeps its expiry; a missing or expired entry is created with ttl.
// Update returns the stored value and its expiry.
func (m *Impl[K, V]) Update(key K, ttl time.Duration, fn func(old V, ok bool) V) (V, time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	entry, ok := m.data[key]
	if ok && now.After(entry.expiry) {
		ok = false
	}

	if !ok {
		entry = decayMapEntry[V]{
			Value:  Zilch[V](),
			expiry: now.Add(ttl),
		}
	}

	entry.Value = fn(entry.Value, ok)
	m.data[key] = entry

	return entry.Value, entry.expiry
}

// Delete removes key and reports whether a live entry was removed.
func (m *Impl[K, V]) Delete(key K) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	val, ok := m.data[key]
	if !ok {
		return false
	}

	delete(m.data, key)
	return !time.Now().After(val.expiry)
}

// Cleanup drops every expired entry.
func (m *Impl[K, V]) Cleanup() {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	for key, val := range m.data {
		if now.After(val.expiry) {
			delete(m.data, key)
		}
	}
}

// Len returns the number of entries, including expired ones not yet cleaned.
func (m *Impl[K, V]) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}
