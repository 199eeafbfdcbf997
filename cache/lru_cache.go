// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache memoises pure functions whose results never go stale.
// The underlying cache is already safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
}

// NewLRUCache returns a cache holding at most size entries
func NewLRUCache[K comparable, V any](size int) (*LRUCache[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache[K, V]{cache: c}, nil
}

// Get returns the cached value for key or computes it with fetch.
// If invalidate is set the cached entry is dropped first.
func (c *LRUCache[K, V]) Get(key K, fetch FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.cache.Remove(key)
	} else if val, ok := c.cache.Get(key); ok {
		return val, nil
	}

	val, err := fetch(key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.cache.Add(key, val)
	return val, nil
}

// Len returns the number of cached entries
func (c *LRUCache[K, V]) Len() int {
	return c.cache.Len()
}
