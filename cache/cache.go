// Package cache keeps the last successful extraction per page URL so a
// repeat request for the same page skips the browser pool entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/store"
)

// Cache is a thin layer over the store's cache namespace.
// Entries have no expiry.
type Cache struct {
	store *store.Store
}

// New creates a Cache backed by the given store.
func New(s *store.Store) *Cache {
	return &Cache{store: s}
}

// Key generates a cache key from the page URL. Cookie identity is
// deliberately not part of the key: sessions with different access rights
// for the same URL share one entry. That keeps the hit rate high at the cost
// of possibly serving a result the requesting cookies could not reproduce.
func Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

// Get returns the cached entry for a URL and whether it was a hit.
// Store failures are logged and reported as misses so the caller can fall
// back to a fresh scrape.
func (c *Cache) Get(url string) (*models.CacheEntry, bool) {
	entry, err := c.store.GetCache(Key(url))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("cache lookup failed, treating as miss", "url", url, "error", err)
		}
		return nil, false
	}
	return entry, true
}

// Put stores the extraction result for a URL.
func (c *Cache) Put(url string, questions []models.Question, combinedPrompt string) error {
	return c.store.PutCache(&models.CacheEntry{
		URLHash:        Key(url),
		URL:            url,
		Questions:      questions,
		CombinedPrompt: combinedPrompt,
	})
}
