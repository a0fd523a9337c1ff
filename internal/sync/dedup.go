package sync

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultDedupCapacity bounds the processed-ID set when no capacity is
// configured.
const DefaultDedupCapacity = 100

// dedupSet remembers which notification IDs were already delivered.
// It holds at most capacity IDs; adding beyond that evicts the oldest.
// Entries are only ever added and tested with Contains, which does not
// refresh recency, so LRU order equals insertion order.
//
// Evicted IDs are not forgotten: floor tracks the highest evicted ID and
// anything at or below it counts as seen.
type dedupSet struct {
	cache *lru.Cache
	floor int64
}

func newDedupSet(capacity int) *dedupSet {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	d := &dedupSet{}
	cache, err := lru.NewWithEvict(capacity, d.onEvict)
	if err != nil {
		// lru.NewWithEvict only fails for a non-positive size.
		panic(err)
	}
	d.cache = cache
	return d
}

func (d *dedupSet) onEvict(key, _ interface{}) {
	if id, ok := key.(int64); ok && id > d.floor {
		d.floor = id
	}
}

func (d *dedupSet) Seen(id int64) bool {
	return id <= d.floor || d.cache.Contains(id)
}

// Mark records id. Callers mark a batch in ascending order so the
// lowest IDs are the ones evicted.
func (d *dedupSet) Mark(id int64) {
	d.cache.Add(id, struct{}{})
}

func (d *dedupSet) Len() int {
	return d.cache.Len()
}

// Floor returns the highest evicted ID.
func (d *dedupSet) Floor() int64 {
	return d.floor
}

func (d *dedupSet) Reset() {
	d.cache.Purge()
	d.floor = 0
}
