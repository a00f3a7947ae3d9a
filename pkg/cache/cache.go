// Package cache memoizes derived results under content-addressed keys.
//
// Results live in a size-bounded in-memory LRU and, when a directory is
// configured, in a BadgerDB disk tier that survives restarts. Concurrent
// requests for the same key share a single computation. Failed
// computations are never stored.
package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vjranagit/tscore/pkg/types"
)

func init() {
	// parameter maps decoded from JSON carry these dynamic types
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// Options configure a Cache
type Options struct {
	// MaxBytes bounds the memory tier; zero means unbounded
	MaxBytes int64
	// TTL expires entries in both tiers; zero disables expiry
	TTL time.Duration
	// Dir enables the disk tier when non-empty
	Dir string
	// CompressionLevel for disk payloads, 1 (fastest) to 4 (best)
	CompressionLevel int
	// OpenRetries bounds retries while the disk directory is locked
	OpenRetries int
	// SweepInterval runs a background expiry pass when positive
	SweepInterval time.Duration
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// DefaultOptions returns a memory-only cache of 256 MiB with a one hour TTL
func DefaultOptions() Options {
	return Options{
		MaxBytes:         256 << 20,
		TTL:              time.Hour,
		CompressionLevel: 2,
		OpenRetries:      3,
	}
}

// Stats is a point-in-time snapshot of cache activity
type Stats struct {
	Hits         int64
	DiskHits     int64
	Misses       int64
	Coalesced    int64
	Computations int64
	Evictions    int64
	Expired      int64
	Entries      int
	Bytes        int64
	MaxBytes     int64
	Persistent   bool
}

// HitRate returns hits over lookups
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is safe for concurrent use. A nil *Cache is valid and disables
// caching.
type Cache struct {
	mem    *memoryTier
	disk   *diskTier
	flight singleflight.Group
	log    logrus.FieldLogger
	now    func() time.Time
	opts   Options

	hits         atomic.Int64
	diskHits     atomic.Int64
	misses       atomic.Int64
	coalesced    atomic.Int64
	computations atomic.Int64
	evictions    atomic.Int64
	expired      atomic.Int64

	mu         sync.Mutex
	sweepTimer *time.Timer
	closed     bool
}

// New creates a cache
func New(opts Options) (*Cache, error) {
	if opts.MaxBytes < 0 {
		return nil, fmt.Errorf("cache: max bytes must be non-negative, got %d", opts.MaxBytes)
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("cache: ttl must be non-negative, got %s", opts.TTL)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = 2
	}

	c := &Cache{
		mem:  newMemoryTier(opts.MaxBytes, opts.TTL, opts.Now),
		log:  opts.Logger.WithField("component", "cache"),
		now:  opts.Now,
		opts: opts,
	}

	if opts.Dir != "" {
		disk, err := openDiskTier(opts.Dir, opts.CompressionLevel, opts.TTL, opts.OpenRetries)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		c.disk = disk
	}

	if opts.SweepInterval > 0 {
		c.sweepTimer = time.AfterFunc(opts.SweepInterval, c.autoSweep)
	}

	c.log.WithFields(logrus.Fields{
		"max_bytes":  opts.MaxBytes,
		"ttl":        opts.TTL,
		"persistent": c.disk != nil,
	}).Debug("cache opened")

	return c, nil
}

// GetOrCompute returns the cached result for key, or runs compute and
// stores its result. Concurrent callers with the same key share one
// compute call. Errors are returned to every waiter and never cached.
func GetOrCompute[T types.Result](ctx context.Context, c *Cache, key Key, compute func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if c == nil {
		return compute()
	}

	if v, ok := c.mem.get(key); ok {
		if out, ok := v.(T); ok {
			c.hits.Add(1)
			return out, nil
		}
	}

	ch := c.flight.DoChan(string(key), func() (any, error) {
		if v, ok := c.mem.get(key); ok {
			if out, ok := v.(T); ok {
				c.hits.Add(1)
				return out, nil
			}
		}

		if out, ok := loadDisk[T](c, key); ok {
			c.hits.Add(1)
			c.diskHits.Add(1)
			return out, nil
		}

		c.misses.Add(1)
		c.computations.Add(1)
		out, err := compute()
		if err != nil {
			c.log.WithError(err).WithField("key", string(key)).Debug("computation failed, not cached")
			return nil, err
		}
		c.store(key, out)
		return out, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.coalesced.Add(1)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		out, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: key %s holds %T, not %T", key, res.Val, zero)
		}
		return out, nil
	}
}

func loadDisk[T types.Result](c *Cache, key Key) (T, bool) {
	var zero T
	if c.disk == nil {
		return zero, false
	}

	encoded, created, ok, err := c.disk.get(key, c.now())
	if err != nil {
		c.log.WithError(err).Warn("disk tier read failed")
		return zero, false
	}
	if !ok {
		return zero, false
	}

	var out T
	if err := gob.NewDecoder(bytes.NewReader(encoded)).Decode(&out); err != nil {
		c.log.WithError(err).WithField("key", string(key)).Warn("dropping undecodable disk entry")
		_ = c.disk.delete(key)
		return zero, false
	}

	// promote into memory keeping the original creation time
	if _, evicted := c.mem.put(key, out, created); evicted > 0 {
		c.evictions.Add(int64(evicted))
	}
	return out, true
}

func (c *Cache) store(key Key, v types.Result) {
	created := c.now()

	stored, evicted := c.mem.put(key, v, created)
	if evicted > 0 {
		c.evictions.Add(int64(evicted))
	}
	if !stored {
		c.log.WithFields(logrus.Fields{
			"key":  string(key),
			"size": v.SizeBytes(),
		}).Debug("result exceeds memory budget")
	}

	if c.disk == nil {
		return
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		c.log.WithError(err).Warn("failed to encode result for disk tier")
		return
	}
	if err := c.disk.put(key, buf.Bytes(), created); err != nil {
		c.log.WithError(err).Warn("disk tier write failed")
	}
}

// Invalidate removes key from both tiers
func (c *Cache) Invalidate(key Key) error {
	if c == nil {
		return nil
	}
	c.mem.remove(key)
	if c.disk != nil {
		return c.disk.delete(key)
	}
	return nil
}

// Purge empties both tiers
func (c *Cache) Purge() error {
	if c == nil {
		return nil
	}
	c.mem.purge()
	if c.disk != nil {
		return c.disk.dropAll()
	}
	return nil
}

// Sweep removes expired memory entries and returns how many were dropped.
// The disk tier expires entries through its own TTL.
func (c *Cache) Sweep() int {
	if c == nil {
		return 0
	}
	n := c.mem.sweep()
	c.expired.Add(int64(n))
	return n
}

func (c *Cache) autoSweep() {
	if n := c.Sweep(); n > 0 {
		c.log.WithField("expired", n).Debug("sweep")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.sweepTimer.Reset(c.opts.SweepInterval)
	}
}

// Stats returns a snapshot of counters and occupancy
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	entries, size := c.mem.size()
	return Stats{
		Hits:         c.hits.Load(),
		DiskHits:     c.diskHits.Load(),
		Misses:       c.misses.Load(),
		Coalesced:    c.coalesced.Load(),
		Computations: c.computations.Load(),
		Evictions:    c.evictions.Load(),
		Expired:      c.expired.Load(),
		Entries:      entries,
		Bytes:        size,
		MaxBytes:     c.opts.MaxBytes,
		Persistent:   c.disk != nil,
	}
}

// Close stops the sweeper and closes the disk tier
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.sweepTimer != nil {
		c.sweepTimer.Stop()
	}
	c.mu.Unlock()

	if c.disk != nil {
		return c.disk.close()
	}
	return nil
}
