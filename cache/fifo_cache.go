// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache holds the small memoisation layers shared by the proof
// pipeline: discrete-log tables, derived context addresses and accelerator
// performance probes.
package cache

import (
	"slices"
	"sync"
)

// FetchFunc computes the value for a missing key
type FetchFunc[K comparable, V any] func(key K) (V, error)

// FIFOCache is a bounded cache that evicts in insertion order. Concurrent
// misses on one key share a single fetch.
type FIFOCache[K comparable, V any] struct {
	lock     sync.RWMutex
	entries  map[K]V
	order    []K
	capacity int

	pendingLock sync.Mutex
	pending     map[K]*pendingFetch[V]
}

type pendingFetch[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// NewFIFOCache returns a cache holding at most capacity entries.
// A capacity below one is treated as one.
func NewFIFOCache[K comparable, V any](capacity int) *FIFOCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFOCache[K, V]{
		entries:  make(map[K]V, capacity),
		order:    make([]K, 0, capacity),
		capacity: capacity,
		pending:  make(map[K]*pendingFetch[V]),
	}
}

// Get returns the cached value for key, calling fetch on a miss.
// Failed fetches are not cached.
func (c *FIFOCache[K, V]) Get(key K, fetch FetchFunc[K, V]) (V, error) {
	if val, ok := c.Peek(key); ok {
		return val, nil
	}

	c.pendingLock.Lock()
	if p, ok := c.pending[key]; ok {
		c.pendingLock.Unlock()
		<-p.done
		return p.val, p.err
	}
	p := &pendingFetch[V]{done: make(chan struct{})}
	c.pending[key] = p
	c.pendingLock.Unlock()

	p.val, p.err = fetch(key)
	if p.err == nil {
		c.lock.Lock()
		c.insert(key, p.val)
		c.lock.Unlock()
	}

	c.pendingLock.Lock()
	delete(c.pending, key)
	c.pendingLock.Unlock()
	close(p.done)

	return p.val, p.err
}

// Peek returns the cached value without fetching
func (c *FIFOCache[K, V]) Peek(key K) (V, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	val, ok := c.entries[key]
	return val, ok
}

// Put stores val, evicting the oldest entry when full
func (c *FIFOCache[K, V]) Put(key K, val V) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.insert(key, val)
}

// Take removes and returns the value for key
func (c *FIFOCache[K, V]) Take(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	val, ok := c.entries[key]
	if !ok {
		return val, false
	}
	delete(c.entries, key)
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	return val, true
}

// insert requires the write lock
func (c *FIFOCache[K, V]) insert(key K, val V) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = val
		return
	}
	if len(c.order) >= c.capacity {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[key] = val
	c.order = append(c.order, key)
}

// Len returns the number of cached entries
func (c *FIFOCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}
