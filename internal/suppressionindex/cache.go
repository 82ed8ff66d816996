package suppressionindex

import (
	"sync"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// scopeIndex is the in-memory accelerator for one namespace: a bloom
// filter for cheap negative answers, a sorted hash set to verify bloom
// positives, and a small overlay for entries written since the last full
// refresh (so a brand new suppression or removal is visible immediately
// without waiting on the refresh interval).
type scopeIndex struct {
	mu        sync.RWMutex
	filter    *bloomFilter
	verified  *sortedSet
	overlay   map[keyHash]*domain.SuppressionEntry // recent inserts, keyed by hash
	tombstone map[keyHash]bool                     // recent removals, keyed by hash
	loadedAt  time.Time
}

func newScopeIndex() *scopeIndex {
	return &scopeIndex{
		filter:    newBloomFilter(1000),
		verified:  newSortedSet(nil),
		overlay:   make(map[keyHash]*domain.SuppressionEntry),
		tombstone: make(map[keyHash]bool),
	}
}

// rebuild replaces the bloom filter and sorted set wholesale from a fresh
// snapshot, then drops overlay entries the snapshot already includes and
// clears every tombstone.
func (si *scopeIndex) rebuild(entries []domain.SuppressionEntry, loadedAt time.Time) {
	hashes := make([]keyHash, 0, len(entries))
	byHash := make(map[keyHash]*domain.SuppressionEntry, len(entries))
	for i := range entries {
		e := &entries[i]
		h := hashKey(normalizeKey(e.Key))
		hashes = append(hashes, h)
		byHash[h] = e
	}

	filter := newBloomFilter(uint64(len(hashes)))
	for _, h := range hashes {
		filter.add(h)
	}

	si.mu.Lock()
	defer si.mu.Unlock()
	si.filter = filter
	si.verified = newSortedSet(hashes)
	si.loadedAt = loadedAt
	// Drop overlay entries now folded into the snapshot; keep anything
	// written after the snapshot's as-of time (can't happen for inserts
	// since refresh is synchronous, but guards the incremental-write race).
	for h, e := range si.overlay {
		if found, ok := byHash[h]; ok && found.CreatedAt.Equal(e.CreatedAt) {
			delete(si.overlay, h)
		}
	}
	si.tombstone = make(map[keyHash]bool)
}

// checkFast returns (entry, blocked) from the in-memory layers alone.
// entry is non-nil only for a hit in the overlay of recent inserts; a hit
// in the last snapshot returns a nil entry, since the snapshot holds
// hashes only.
func (si *scopeIndex) checkFast(raw string) (entry *domain.SuppressionEntry, blocked bool) {
	h := hashKey(normalizeKey(raw))

	si.mu.RLock()
	defer si.mu.RUnlock()

	if si.tombstone[h] {
		return nil, false
	}
	if e, ok := si.overlay[h]; ok {
		return e, true
	}
	if !si.filter.mayContain(h) {
		return nil, false
	}
	if si.verified.contains(h) {
		// The snapshot only stores hashes, not the full entry; the
		// service layer re-reads the full row via Repository.Lookup
		// when it needs reason/expiry detail.
		return nil, true
	}
	return nil, false
}

func (si *scopeIndex) patchInsert(e *domain.SuppressionEntry) {
	h := hashKey(normalizeKey(e.Key))
	si.mu.Lock()
	defer si.mu.Unlock()
	si.filter.add(h)
	si.verified.insert(h)
	si.overlay[h] = e
	delete(si.tombstone, h)
}

func (si *scopeIndex) patchRemove(raw string) {
	h := hashKey(normalizeKey(raw))
	si.mu.Lock()
	defer si.mu.Unlock()
	delete(si.overlay, h)
	si.tombstone[h] = true
}
