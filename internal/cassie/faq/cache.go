package faq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Source is where the cache pulls its entries from, typically the SQLite
// store. Kept minimal so tests can feed a static slice.
type Source interface {
	ListFAQs(ctx context.Context) ([]Entry, error)
}

// Cache holds the live FAQ knowledge base in memory and allows hot-reloads
// after the underlying table is edited. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	source  Source
	entries []Entry
}

// NewCache creates an empty cache backed by source. Call Refresh before the
// first lookup.
func NewCache(source Source) *Cache {
	return &Cache{source: source}
}

// Refresh reloads all entries from the source, atomically replacing the live
// set. On error the previous entries stay live.
func (c *Cache) Refresh(ctx context.Context) error {
	entries, err := c.source.ListFAQs(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload faq entries: %w", err)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	slog.Info("faq cache refreshed", "entries", len(entries))
	return nil
}

// Match scores query against the cached entries. Returns nil when the cache
// is empty or no entry clears the threshold.
func (c *Cache) Match(query string) *Match {
	c.mu.RLock()
	entries := c.entries
	c.mu.RUnlock()
	return Best(query, entries)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
