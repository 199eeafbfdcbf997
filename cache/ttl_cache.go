// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type ttlEntry[V any] struct {
	value   V
	fetched time.Time
}

// TTLCache keeps each value for a fixed duration after it was fetched.
// Concurrent refreshes of one key are deduplicated.
type TTLCache[K comparable, V any] struct {
	lock    sync.RWMutex
	entries map[K]ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
}

// NewTTLCache returns a cache whose entries expire after ttl
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a fresh cached value or refreshes it with fetch. If invalidate
// is set the entry is removed before fetching, so no caller reads the stale
// value while the refresh is in flight.
func (c *TTLCache[K, V]) Get(key K, fetch FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		delete(c.entries, key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		e, ok := c.entries[key]
		c.lock.RUnlock()
		if ok && c.now().Sub(e.fetched) < c.ttl {
			return e.value, nil
		}
	}

	v, err, _ := c.group.Do(flightKey(key), func() (any, error) {
		val, err := fetch(key)
		if err != nil {
			return nil, err
		}
		c.lock.Lock()
		c.entries[key] = ttlEntry[V]{value: val, fetched: c.now()}
		c.lock.Unlock()
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func flightKey[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
