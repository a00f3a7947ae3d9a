package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/vjranagit/tscore/pkg/types"
)

// memoryTier is an LRU bounded by total result size, with optional TTL
type memoryTier struct {
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
	entries  map[Key]*cacheEntry
	lru      *list.List
	bytes    int64
}

// cacheEntry represents a cached result
type cacheEntry struct {
	key     Key
	value   types.Result
	size    int64
	created time.Time
	element *list.Element
}

func newMemoryTier(maxBytes int64, ttl time.Duration, now func() time.Time) *memoryTier {
	return &memoryTier{
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      now,
		entries:  make(map[Key]*cacheEntry),
		lru:      list.New(),
	}
}

func (m *memoryTier) expired(e *cacheEntry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.created) > m.ttl
}

// get retrieves a live entry and marks it most recently used
func (m *memoryTier) get(key Key) (types.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		return nil, false
	}

	if m.expired(entry, m.now()) {
		m.removeLocked(key)
		return nil, false
	}

	m.lru.MoveToFront(entry.element)
	return entry.value, true
}

// put stores a result created at the given time and returns how many
// entries were evicted to make room. Results larger than the whole budget
// are not stored.
func (m *memoryTier) put(key Key, value types.Result, created time.Time) (stored bool, evicted int) {
	size := value.SizeBytes()
	if m.maxBytes > 0 && size > m.maxBytes {
		return false, 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.entries[key]; exists {
		m.bytes += size - entry.size
		entry.value = value
		entry.size = size
		entry.created = created
		m.lru.MoveToFront(entry.element)
	} else {
		entry := &cacheEntry{
			key:     key,
			value:   value,
			size:    size,
			created: created,
		}
		entry.element = m.lru.PushFront(entry)
		m.entries[key] = entry
		m.bytes += size
	}

	// Evict least recently used until back under budget
	for m.maxBytes > 0 && m.bytes > m.maxBytes && m.lru.Len() > 1 {
		oldest := m.lru.Back()
		m.removeLocked(oldest.Value.(*cacheEntry).key)
		evicted++
	}

	return true, evicted
}

// removeLocked removes an entry from the cache (must hold lock)
func (m *memoryTier) removeLocked(key Key) bool {
	entry, exists := m.entries[key]
	if !exists {
		return false
	}
	m.lru.Remove(entry.element)
	delete(m.entries, key)
	m.bytes -= entry.size
	return true
}

func (m *memoryTier) remove(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(key)
}

// sweep drops every expired entry
func (m *memoryTier) sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for e := m.lru.Back(); e != nil; {
		prev := e.Prev()
		entry := e.Value.(*cacheEntry)
		if m.expired(entry, now) {
			m.removeLocked(entry.key)
			removed++
		}
		e = prev
	}
	return removed
}

func (m *memoryTier) purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[Key]*cacheEntry)
	m.lru = list.New()
	m.bytes = 0
}

func (m *memoryTier) size() (entries int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), m.bytes
}
