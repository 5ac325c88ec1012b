// Package session keeps the portal's client-side login state: an expiring
// key/value cache persisted to a JSON file, and a gate that checks the cached
// session against the server before admin pages are used.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/constants"
)

// fleetDataMarkers select the keys ClearFleetData removes.
var fleetDataMarkers = []string{"fleet", "admin", "price", "finance"}

type entry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// Cache is an expiring key/value store backed by a JSON file. Every write is
// flushed to disk before it returns.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]entry
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the clock used to stamp and check expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open loads the cache file at path. A missing file is an empty cache; an
// unreadable one is an error.
func Open(path string, opts ...Option) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session cache: %w", err)
	}
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c.entries); err != nil {
		return nil, fmt.Errorf("decode session cache %s: %w", path, err)
	}
	return c, nil
}

// Set stores value under key for ttl. A ttl of zero uses the default session
// expiry; a negative ttl stores the value without expiry.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = constants.DefaultSessionExpiry
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	return c.SetUntil(key, value, expiresAt)
}

// SetUntil stores value under key until expiresAt. The zero time never expires.
func (c *Cache) SetUntil(key string, value any, expiresAt time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	e := entry{Value: raw}
	if !expiresAt.IsZero() {
		at := expiresAt.UTC()
		e.ExpiresAt = &at
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return c.flush()
}

// Get decodes the value under key into dst. It reports false when the key is
// missing or expired; expired entries are removed.
func (c *Cache) Get(key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if e.ExpiresAt != nil && !c.now().Before(*e.ExpiresAt) {
		delete(c.entries, key)
		return false, c.flush()
	}

	if err := json.Unmarshal(e.Value, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable session cache entry")
		delete(c.entries, key)
		return false, c.flush()
	}
	return true, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	return c.flush()
}

// ClearFleetData removes every key naming fleet, admin, price or finance data.
// Matching ignores case, so loggedInFleetAdmin is cleared with the rest.
func (c *Cache) ClearFleetData() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if isFleetKey(key) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}

	log.Debug().Int("removed", removed).Msg("Cleared fleet data from session cache")
	return c.flush()
}

// Keys returns the stored keys in order, including expired ones not yet read.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func isFleetKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range fleetDataMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// flush writes the entries through a temp file and rename, so a crash never
// leaves a half-written cache. Callers hold c.mu.
func (c *Cache) flush() error {
	raw, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create session cache: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write session cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace session cache: %w", err)
	}
	return nil
}
