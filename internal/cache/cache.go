package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// CachedResponse represents a cached response
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Cache is a process-local response cache keyed by prompt hash.
type Cache struct {
	entries sync.Map
}

func New() *Cache {
	return &Cache{}
}

// Key generates a cache key from a prompt
func Key(prompt string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached response for a key, if present.
func (c *Cache) Get(key string) (string, bool) {
	if val, ok := c.entries.Load(key); ok {
		return val.(CachedResponse).Response, true
	}
	return "", false
}

// Put stores a response under a key.
func (c *Cache) Put(key, response string) {
	c.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: time.Now(),
	})
}
