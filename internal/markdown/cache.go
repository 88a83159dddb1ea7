// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"sync"

	"github.com/bluele/gcache"
	"github.com/cespare/xxhash/v2"
)

// CacheCapacity is the hard limit on cached parses. Streamed messages
// re-parse on every delta, so a small cache absorbs almost all repeats.
const CacheCapacity = 256

// cacheEntry stores the source alongside the result so a 64-bit hash
// collision can never serve the wrong parse.
type cacheEntry struct {
	source   string
	segments []Segment
}

// CacheStats reports cache effectiveness. Hits plus Misses equals the
// number of SegmentCached calls since the last reset.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

var (
	cacheMu     sync.Mutex
	cache       gcache.Cache
	cacheHits   uint64
	cacheMisses uint64
)

func ensureCache() gcache.Cache {
	if cache == nil {
		cache = gcache.New(CacheCapacity).LRU().Build()
	}
	return cache
}

// SegmentCached parses and groups source, serving repeat calls from the
// process-global cache. The result is shared; callers must not mutate it.
func SegmentCached(source string) []Segment {
	key := xxhash.Sum64String(source)

	cacheMu.Lock()
	c := ensureCache()
	if v, err := c.Get(key); err == nil {
		entry := v.(cacheEntry)
		if entry.source == source {
			cacheHits++
			cacheMu.Unlock()
			return entry.segments
		}
		// Hash collision: fall through and overwrite with this source.
	}
	cacheMisses++
	cacheMu.Unlock()

	// Parse outside the lock; it can be slow for large messages.
	segments := Group(Parse(source))

	cacheMu.Lock()
	//nolint:errcheck // LRU set cannot fail
	ensureCache().Set(key, cacheEntry{source: source, segments: segments})
	cacheMu.Unlock()

	return segments
}

// Stats returns a snapshot of cache hit/miss counters.
func Stats() CacheStats {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return CacheStats{Hits: cacheHits, Misses: cacheMisses}
}

// CacheLen returns the current number of cached entries.
func CacheLen() int {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return ensureCache().Len(false)
}

// ResetCacheForTesting drops all cached entries and counters.
func ResetCacheForTesting() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = nil
	cacheHits = 0
	cacheMisses = 0
}
