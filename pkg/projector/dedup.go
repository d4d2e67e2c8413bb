package projector

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// seenCache is a bounded, time-windowed set of processed transaction hashes.
// Transfer and faucet events are not part of order state, so duplicate
// notifications are suppressed here instead; entries age out after the window
// and the cache is size-capped so it can never grow without bound.
type seenCache struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	seen   map[common.Hash]time.Time
}

func newSeenCache(window time.Duration, max int) *seenCache {
	return &seenCache{
		window: window,
		max:    max,
		seen:   make(map[common.Hash]time.Time),
	}
}

// Seen marks the hash and reports whether it was already present within the
// window.
func (c *seenCache) Seen(h common.Hash, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-c.window)
	if at, ok := c.seen[h]; ok && at.After(cutoff) {
		return true
	}

	// Expire aged entries; if still over cap, drop the oldest.
	for k, at := range c.seen {
		if !at.After(cutoff) {
			delete(c.seen, k)
		}
	}
	for len(c.seen) >= c.max {
		var oldest common.Hash
		var oldestAt time.Time
		first := true
		for k, at := range c.seen {
			if first || at.Before(oldestAt) {
				oldest, oldestAt, first = k, at, false
			}
		}
		delete(c.seen, oldest)
	}

	c.seen[h] = now
	return false
}

func (c *seenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
