// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package cache

import (
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a concurrency-safe map whose entries expire. Expired entries are
// removed lazily on Get and by Cleanup.
type TTL[V any] struct {
	mu      sync.RWMutex
	entries map[string]ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time

	hits, misses int64
}

// NewTTL creates a cache whose entries live for ttl.
func NewTTL[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		entries: make(map[string]ttlEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key if it has not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.value, true
	}

	c.mu.Lock()
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	c.mu.Unlock()

	var zero V
	return zero, false
}

// Set stores value under key with the default TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Cleanup drops expired entries and returns how many were removed.
func (c *TTL[V]) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *TTL[V]) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
