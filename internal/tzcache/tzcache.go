// Package tzcache resolves IANA timezone names to *time.Location through a
// small LRU. Every user evaluated on a tick needs its tenant's location, so
// the zoneinfo lookup is worth caching.
package tzcache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded timezone lookup cache. Safe for concurrent use.
type Cache struct {
	locations *lru.Cache[string, *time.Location]
}

// New creates a cache holding up to size parsed locations.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	locations, err := lru.New[string, *time.Location](size)
	if err != nil {
		return nil, err
	}
	return &Cache{locations: locations}, nil
}

// Load returns the location for an IANA name such as "Europe/Warsaw".
// An empty name resolves to UTC.
func (c *Cache) Load(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if loc, ok := c.locations.Get(name); ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	c.locations.Add(name, loc)
	return loc, nil
}
