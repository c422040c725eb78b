package dalcore

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// CacheStats counts lookups of one engine cache. Misses equal the number of
// entries built.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// Stats is a snapshot of all engine caches.
type Stats struct {
	Descriptors CacheStats
	Accessors   CacheStats
	Routines    CacheStats
	Shapes      CacheStats
}

type cacheEntry[V any] struct {
	once sync.Once
	val  V
	err  error
}

// onceCache is a process-lifetime memo: the first lookup of a key builds the
// entry exactly once, concurrent lookups wait for it, later lookups are lock-free.
// Entries, including failed builds, are never evicted.
type onceCache[K comparable, V any] struct {
	m      sync.Map // K -> *cacheEntry[V]
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *onceCache[K, V]) get(key K, build func() (V, error)) (V, error) {
	e, ok := c.m.Load(key)
	if !ok {
		e, ok = c.m.LoadOrStore(key, &cacheEntry[V]{})
	}
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	entry := e.(*cacheEntry[V])
	entry.once.Do(func() {
		// a panicking build still leaves an error for later lookups
		defer func() {
			if r := recover(); r != nil {
				entry.err = fmt.Errorf("dalcore: cache build panicked: %v", r)
				panic(r)
			}
		}()
		entry.val, entry.err = build()
	})
	return entry.val, entry.err
}

func (c *onceCache[K, V]) stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
