package flathill

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Cache memoizes content-type listings and rendered markdown. Reads hit an
// in-memory map first; entries are written through to SQLite so the cache
// survives process restarts. Presence of an entry means valid; there is no
// TTL, invalidation is explicit only.
type Cache struct {
	mu       sync.RWMutex
	db       *sql.DB
	listings map[string]*Listing
}

// OpenCache opens (or creates) the cache database at path, ensuring the
// cache directory exists.
func OpenCache(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps readers unblocked while a save invalidates; NORMAL sync is
	// safe with WAL for a cache that can always be rebuilt from disk.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	c := &Cache{db: db, listings: make(map[string]*Listing)}
	if err := c.ensureSchema(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) ensureSchema() error {
	_, err := c.db.Exec(`
CREATE TABLE IF NOT EXISTS listings (
    type TEXT PRIMARY KEY,
    payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rendered (
    key TEXT PRIMARY KEY,
    html TEXT NOT NULL
);
`)
	return err
}

// Listing returns the cached listing for a content type, rehydrating from
// SQLite when the in-memory copy is missing (e.g. after a restart).
func (c *Cache) Listing(contentType string) (*Listing, bool) {
	c.mu.RLock()
	l, ok := c.listings[contentType]
	c.mu.RUnlock()
	if ok {
		return l, true
	}

	var payload string
	err := c.db.QueryRow(`SELECT payload FROM listings WHERE type = ?`, contentType).Scan(&payload)
	if err != nil {
		return nil, false
	}
	l = &Listing{}
	if err := json.Unmarshal([]byte(payload), l); err != nil {
		// A corrupt row is treated as a miss; the next PutListing
		// overwrites it.
		return nil, false
	}
	c.mu.Lock()
	c.listings[contentType] = l
	c.mu.Unlock()
	return l, true
}

// PutListing stores a freshly built listing for a content type.
func (c *Cache) PutListing(contentType string, l *Listing) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.listings[contentType] = l
	c.mu.Unlock()
	_, err = c.db.Exec(`INSERT OR REPLACE INTO listings (type, payload) VALUES (?, ?)`,
		contentType, string(payload))
	return err
}

// InvalidateListing drops the listing for a content type so the next List
// rebuilds it from the content directory.
func (c *Cache) InvalidateListing(contentType string) error {
	c.mu.Lock()
	delete(c.listings, contentType)
	c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM listings WHERE type = ?`, contentType)
	return err
}

// renderedCache adapts Cache to the markdown.Cache interface.
type renderedCache struct {
	c *Cache
}

func (r renderedCache) Get(key string) (string, bool) {
	var html string
	err := r.c.db.QueryRow(`SELECT html FROM rendered WHERE key = ?`, key).Scan(&html)
	if err != nil {
		return "", false
	}
	return html, true
}

func (r renderedCache) Put(key, html string) {
	// Best effort: failing to cache rendered HTML is not a request error.
	_, _ = r.c.db.Exec(`INSERT OR REPLACE INTO rendered (key, html) VALUES (?, ?)`, key, html)
}
