package api

import (
	"sync"
	"time"
)

// idempotencyTTL is how long ingest responses are cached by message id.
const idempotencyTTL = 60 * time.Second

// idempotencyEntry is one cached response.
type idempotencyEntry struct {
	status    int
	body      []byte
	expiresAt time.Time
}

// idempotencyCache caches ingest responses so a gateway retrying a delivery
// gets the original answer back instead of re-running intake.
type idempotencyCache struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
}

func newIdempotencyCache() *idempotencyCache {
	return &idempotencyCache{entries: make(map[string]idempotencyEntry)}
}

func (c *idempotencyCache) get(key string) (idempotencyEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return idempotencyEntry{}, false
	}
	return e, true
}

func (c *idempotencyCache) set(key string, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = idempotencyEntry{
		status:    status,
		body:      body,
		expiresAt: time.Now().Add(idempotencyTTL),
	}
}

// fixedWindow is one sender's counter.
type fixedWindow struct {
	count       int
	windowStart time.Time
}

// senderRateLimiter caps ingest traffic per sender with a fixed one-minute
// window. Zero maxPerMinute disables the limit.
type senderRateLimiter struct {
	mu      sync.Mutex
	senders map[string]*fixedWindow
	max     int
}

func newSenderRateLimiter(maxPerMinute int) *senderRateLimiter {
	return &senderRateLimiter{
		senders: make(map[string]*fixedWindow),
		max:     maxPerMinute,
	}
}

func (l *senderRateLimiter) allow(sender string) bool {
	if l.max <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()

	w, ok := l.senders[sender]
	if !ok {
		w = &fixedWindow{}
		l.senders[sender] = w
	}
	if now.Sub(w.windowStart) >= time.Minute {
		w.count = 0
		w.windowStart = now
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}
