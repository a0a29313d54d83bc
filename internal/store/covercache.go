// Package store provides caching of resolved covers keyed by track identity.
package store

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one cached resolution. NotFound entries record that a lookup ran
// and found nothing, so repeat notifications for the same track do not hit the
// network again.
type Entry struct {
	Identity    string
	Artist      string
	Title       string
	Album       string
	Provider    string
	ArtworkURL  string
	ContentType string
	Image       []byte
	NotFound    bool
	ResolvedAt  time.Time
}

// CoverStore is a thread-safe cover cache: a Bloom filter prefilter in front
// of a map, with LRU eviction bounding memory. An optional SQLite layer
// persists entries across restarts.
type CoverStore struct {
	entries           map[string]*Entry
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	maxEntries        int
	falsePositiveRate float64
	db                *coverDB
}

// NewCoverStore creates an in-memory cover store with the specified capacity
// and Bloom filter false positive rate.
func NewCoverStore(maxEntries int, falsePositiveRate float64) *CoverStore {
	lruCache, _ := lru.New[string, struct{}](maxEntries)

	if maxEntries < 0 || maxEntries > int(^uint(0)>>1) {
		panic("maxEntries value out of range for uint conversion")
	}
	bloomFilter := bloom.NewWithEstimates(uint(maxEntries), falsePositiveRate)

	return &CoverStore{
		entries:           make(map[string]*Entry),
		bloom:             bloomFilter,
		lru:               lruCache,
		maxEntries:        maxEntries,
		falsePositiveRate: falsePositiveRate,
	}
}

// NewPersistentCoverStore creates a cover store backed by a SQLite database at
// path. Existing entries are loaded into memory; writes go through to disk.
func NewPersistentCoverStore(maxEntries int, falsePositiveRate float64, path string) (*CoverStore, error) {
	cs := NewCoverStore(maxEntries, falsePositiveRate)

	db, err := openCoverDB(path)
	if err != nil {
		return nil, err
	}
	cs.db = db

	entries, err := db.loadAll()
	if err != nil {
		_ = db.close()
		return nil, err
	}

	cs.mutex.Lock()
	for _, entry := range entries {
		cs.insertLocked(entry)
	}
	cs.mutex.Unlock()

	return cs, nil
}

// Get returns the cached entry for a track identity, if any.
func (cs *CoverStore) Get(identity string) (*Entry, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.bloom.TestString(identity) {
		return nil, false
	}

	entry, exists := cs.entries[identity]
	return entry, exists
}

// Put stores a resolved cover, replacing any previous entry for the identity.
func (cs *CoverStore) Put(entry *Entry) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.insertLocked(entry)

	if cs.db != nil {
		_ = cs.db.put(entry)
	}
}

// PutNotFound records that resolution for the identity ran and found no cover.
func (cs *CoverStore) PutNotFound(identity, artist, title, album string) {
	cs.Put(&Entry{
		Identity:   identity,
		Artist:     artist,
		Title:      title,
		Album:      album,
		NotFound:   true,
		ResolvedAt: time.Now().UTC(),
	})
}

// Size returns the number of cached entries.
func (cs *CoverStore) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	return len(cs.entries)
}

// Clear removes all entries, including persisted ones.
func (cs *CoverStore) Clear() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.entries = make(map[string]*Entry)
	if cs.maxEntries < 0 || cs.maxEntries > int(^uint(0)>>1) {
		panic("maxEntries value out of range for uint conversion")
	}
	cs.bloom = bloom.NewWithEstimates(uint(cs.maxEntries), cs.falsePositiveRate)
	cs.lru.Purge()

	if cs.db != nil {
		_ = cs.db.clear()
	}
}

// Close releases the persistence layer, if any.
func (cs *CoverStore) Close() error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if cs.db != nil {
		err := cs.db.close()
		cs.db = nil
		return err
	}
	return nil
}

func (cs *CoverStore) insertLocked(entry *Entry) {
	cs.entries[entry.Identity] = entry
	cs.bloom.AddString(entry.Identity)
	cs.lru.Add(entry.Identity, struct{}{})

	for len(cs.entries) > cs.maxEntries {
		cs.evictOldestLocked()
	}
}

func (cs *CoverStore) evictOldestLocked() {
	oldestKey, _, ok := cs.lru.GetOldest()
	if !ok {
		return
	}

	delete(cs.entries, oldestKey)
	cs.lru.Remove(oldestKey)
	// The bloom filter does not support removal; a stale positive just falls
	// through to the map lookup.

	if cs.db != nil {
		_ = cs.db.delete(oldestKey)
	}
}
